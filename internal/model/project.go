package model

import "time"

// Project はダッシュボードに保存されたリライト結果（入力と出力の組）を表す。
type Project struct {
	ID         string
	UserID     string
	InputText  string
	OutputText string
	CreatedAt  time.Time
}

// ContactMessage は問い合わせフォームから送信されたメッセージを表す。
type ContactMessage struct {
	ID        string
	Name      string
	Email     string
	Message   string
	CreatedAt time.Time
}
