package structs

// Credentials API凭证记录
// 不变式: Balance = Tokens/1000 * 单价，计数只增不减
type Credentials struct {
	Key     string `gorm:"primaryKey"`
	Queries uint64
	Tokens  uint64
	Balance float64
}

// Tables 需要迁移的表
var Tables = []any{
	&Conversations{},
	&Credentials{},
}
