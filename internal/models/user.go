package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type Role string

const (
	RoleStandard   Role = "USER"
	RoleAgent      Role = "AGENT"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// User mirrors the identity provider's subject. Balances belong to a separate
// ledger and are only read here.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID             string          `bun:"id,pk" json:"id"`
	Email          string          `bun:"email" json:"email"`
	Name           string          `bun:"name" json:"name"`
	Role           Role            `bun:"role,notnull" json:"role"`
	RealBalance    decimal.Decimal `bun:"real_balance,type:numeric(18,2),notnull,default:0" json:"realBalance"`
	VirtualBalance decimal.Decimal `bun:"virtual_balance,type:numeric(18,2),notnull,default:0" json:"virtualBalance"`
	USDBalance     decimal.Decimal `bun:"usd_balance,type:numeric(18,2),notnull,default:0" json:"usdBalance"`
	CreatedAt      time.Time       `bun:"created_at,notnull" json:"createdAt"`
}
