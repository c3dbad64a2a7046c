// helpers.go — Store 层通用工具，供 Postgres 状态存储复用。
package store

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// BaseStore 所有 Postgres-backed store 的嵌入基底，持有连接池。
type BaseStore struct{ pool *pgxpool.Pool }

// NewBaseStore 创建 BaseStore。
func NewBaseStore(pool *pgxpool.Pool) BaseStore { return BaseStore{pool: pool} }

// Pool 返回底层连接池，供子类型直接使用。
func (b BaseStore) Pool() *pgxpool.Pool { return b.pool }
