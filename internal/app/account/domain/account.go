package domain

import "fmt"

// Account 帳戶快照 (不可變值)
//
// Version 每次成功異動剛好 +1，建立時為 0；
// 同一個 ID 的 Version 構成該帳戶歷史的全序。
type Account struct {
	ID        int64 `json:"id"`
	Available int64 `json:"available"`
	Version   int64 `json:"version"`
}

// NewAccount 建立一個新開戶的帳戶快照 (available=0, version=0)
func NewAccount(id int64) Account {
	return Account{ID: id}
}

// Apply 回傳套用 amount 之後的下一個版本
func (a Account) Apply(amount int64) Account {
	return Account{
		ID:        a.ID,
		Available: a.Available + amount,
		Version:   a.Version + 1,
	}
}

func (a Account) String() string {
	return fmt.Sprintf("%d@%d: %d", a.ID, a.Version, a.Available)
}
