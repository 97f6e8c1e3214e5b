package pass

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrMalformedTicket 票据内容无法解析或缺少字段
var ErrMalformedTicket = errors.New("malformed ticket payload")

// Ticket 二维码中编码的票据内容，也是报名记录上持久化的原始值
type Ticket struct {
	EventID           string    `json:"event_id"`
	StudentID         string    `json:"student_id"`
	RegistrationToken string    `json:"registration_token"`
	IssuedAt          time.Time `json:"issued_at"`
}

// NewTicket 为 (活动, 学生) 生成带新鲜度令牌的票据
func NewTicket(eventID, studentID string, now time.Time) Ticket {
	return Ticket{
		EventID:           eventID,
		StudentID:         studentID,
		RegistrationToken: "reg_" + uuid.NewString(),
		IssuedAt:          now.UTC().Truncate(time.Second),
	}
}

// Encode 序列化为 JSON
func (t Ticket) Encode() ([]byte, error) {
	return json.Marshal(t)
}

// ParseTicket 解析扫码得到的票据内容
func ParseTicket(raw []byte) (Ticket, error) {
	var t Ticket
	if err := json.Unmarshal(raw, &t); err != nil {
		return Ticket{}, ErrMalformedTicket
	}
	if t.EventID == "" || t.StudentID == "" || t.RegistrationToken == "" {
		return Ticket{}, ErrMalformedTicket
	}
	return t, nil
}

// Canonical 将存储的票据内容重新编码为 Encode 的字节形式
// jsonb 会重排键并改写空白，二维码必须始终编码同一份字节
func Canonical(raw []byte) ([]byte, error) {
	t, err := ParseTicket(raw)
	if err != nil {
		return nil, err
	}
	return t.Encode()
}
