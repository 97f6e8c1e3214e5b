package validate

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
)

type sample struct {
	Start string `json:"start_time" validate:"required,hhmm"`
	Date  string `json:"event_date" validate:"required,datestr"`
}

func TestConfigure_CustomRules(t *testing.T) {
	v := validator.New()
	Configure(v)

	if err := v.Struct(sample{Start: "09:30", Date: "2026-05-01"}); err != nil {
		t.Fatalf("合法输入不应报错: %v", err)
	}

	err := v.Struct(sample{Start: "9h30", Date: "01/05/2026"})
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		t.Fatalf("期望 ValidationErrors，实际: %v", err)
	}
	if len(ve) != 2 {
		t.Fatalf("期望 2 个字段错误，实际=%d", len(ve))
	}
	if ve[0].Field() != "start_time" {
		t.Errorf("期望字段名取 json 标签 start_time，实际=%s", ve[0].Field())
	}
	if ve[1].Tag() != "datestr" {
		t.Errorf("期望规则 datestr，实际=%s", ve[1].Tag())
	}
}
