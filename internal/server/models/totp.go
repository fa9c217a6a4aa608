package models

import "time"

type TotpSecret struct {
	AccountID    int64
	CreationDate time.Time
	Secret       []byte
}
