package structs

// EngineConfig 补全引擎配置结构
type EngineConfig struct {
	ModelName        string  `default:"GPT-4o mini"`                 // 模型名称
	ModelID          string  `default:"gpt-4o-mini"`                 // 模型ID
	ModelTemperature float32 `default:"-1"`                          // 模型温度，-1 代表默认
	ModelTopP        float32 `default:"-1"`                          // 模型TopP，-1 代表默认
	FrequencyPenalty float32 `default:"0"`                           // 频率惩罚
	PresencePenalty  float32 `default:"0"`                           // 存在惩罚
	MaxTokens        int     `default:"1024"`                        // 预留的回复token数，<=0 不预留
	TokenBudget      int     `default:"16384"`                       // 会话上下文token预算
	UnitPrice        float64 `default:"0.002"`                       // 每1000 token 单价
	SystemTemplate   string  `default:""`                            // 覆写基础指令模板
	EnableModeration bool    `default:"false"`                       // 是否启用审核
	EnableStream     bool    `default:"true"`                        // 是否启用流式响应
	NoSystemRole     bool    `default:"false"`                       // 模型不支持system角色
	InlineImages     bool    `default:"false"`                       // 图片引用需内联为data URI
	ProviderURL      string  `default:"https://api.openai.com/v1"`   // 主模型提供者URL
	ProviderKeys     []string                                        // 主池初始Key列表
	AltProviderURL   string  `default:""`                            // 备用提供者URL
	AltProviderKeys  []string                                        // 备用Key列表
	AltSelectMode    string  `default:"sequential"`                  // 备用Key选择: sequential | random
	AuthHeaderName   string  `default:""`                            // 自定义鉴权头，空则 Authorization: Bearer
	RouteHeaderName  string  `default:""`                            // 自定义路由头名称
	RouteHeaderValue string  `default:""`                            // 自定义路由头取值
	DisposableKeys   bool    `default:"false"`                       // 429时拉黑备用Key
	ProxyURL         string  `default:""`                            // SOCKS5 代理地址
	FilterRules      []string                                        // 本地过滤规则（expr 布尔表达式）
}

// StorageConfig 存储配置结构
type StorageConfig struct {
	Backend       string `default:"sqlite"`         // sqlite | file
	DataPath      string `default:".mizar0"`        // 数据目录
	DBFile        string `default:"db.sqlite"`      // sqlite 文件名
	ArchiveDir    string `default:"archive"`        // 归档目录（相对数据目录）
	BlacklistFile string `default:"blacklist.json"` // 黑名单侧文件（相对数据目录）
	TTLDays       int32  `default:"30"`             // 会话保存天数
}

// Config 配置文件根结构
type Config struct {
	Version int           // 配置版本
	Engine  EngineConfig  // 引擎配置
	Storage StorageConfig // 存储配置
}
