// Package model はドメインモデルを定義する。
package model

import "time"

// Lifter はジャーナルを記録するユーザー。
// EmailとDisplayNameはサインインのたびにIdPの最新値で更新する。
type Lifter struct {
	ID           string
	Email        string
	DisplayName  string
	CreatedAt    time.Time
	LastSignInAt time.Time
}

// Identity はLifterとIdPアカウントの紐付け。
// Subjectはプロバイダー内で一意な利用者ID（Googleのsub）。
type Identity struct {
	ID        string
	LifterID  string
	Provider  string
	Subject   string
	CreatedAt time.Time
}

// Session はバックエンドのログインセッション。IDはそのままクライアントのセッショントークンになる。
type Session struct {
	ID        string
	LifterID  string
	ExpiresAt time.Time
	CreatedAt time.Time
}
