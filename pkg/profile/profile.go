package profile

// Profile 清理配置，五个布尔面（不可变命名配置）
type Profile struct {
	DeleteCookies        bool `json:"deleteCookies"`
	ClearCache           bool `json:"clearCache"`
	DeleteLocalStorage   bool `json:"deleteLocalStorage"`
	DeleteSessionStorage bool `json:"deleteSessionStorage"`
	DeleteIndexedDB      bool `json:"deleteIndexedDB"`
}

// 内置配置键
const (
	KeyStrict   = "strict"
	KeyBalanced = "balanced"
	KeyRelaxed  = "relaxed"
	KeyParanoid = "paranoid"
	KeyCustom   = "custom_pro" // 用户自定义配置，在基础配置上按覆盖项合并
)

// 配置来源
const (
	SourceManual = "manual" // 用户手动选择，粘滞，抑制自动切换
	SourceAuto   = "auto"   // 自适应逻辑选择
)

// builtin 内置配置表
var builtin = map[string]Profile{
	KeyStrict:   {DeleteCookies: true, ClearCache: true, DeleteLocalStorage: true, DeleteSessionStorage: true, DeleteIndexedDB: true},
	KeyBalanced: {DeleteCookies: true, ClearCache: true},
	KeyRelaxed:  {},
	KeyParanoid: {DeleteCookies: true, ClearCache: true, DeleteLocalStorage: true, DeleteSessionStorage: true, DeleteIndexedDB: true},
}

// Get 按键返回内置配置，未知键回退到 balanced
func Get(key string) Profile {
	if p, ok := builtin[key]; ok {
		return p
	}
	return builtin[KeyBalanced]
}

// Valid 判断是否为可持久化的配置键
func Valid(key string) bool {
	if key == KeyCustom {
		return true
	}
	_, ok := builtin[key]
	return ok
}

// Override 自定义配置的覆盖项，nil 表示沿用基础配置
type Override struct {
	DeleteCookies        *bool `json:"deleteCookies,omitempty"`
	ClearCache           *bool `json:"clearCache,omitempty"`
	DeleteLocalStorage   *bool `json:"deleteLocalStorage,omitempty"`
	DeleteSessionStorage *bool `json:"deleteSessionStorage,omitempty"`
	DeleteIndexedDB      *bool `json:"deleteIndexedDB,omitempty"`
}

// Merge 将覆盖项合并到基础配置上
func Merge(base Profile, o Override) Profile {
	out := base
	if o.DeleteCookies != nil {
		out.DeleteCookies = *o.DeleteCookies
	}
	if o.ClearCache != nil {
		out.ClearCache = *o.ClearCache
	}
	if o.DeleteLocalStorage != nil {
		out.DeleteLocalStorage = *o.DeleteLocalStorage
	}
	if o.DeleteSessionStorage != nil {
		out.DeleteSessionStorage = *o.DeleteSessionStorage
	}
	if o.DeleteIndexedDB != nil {
		out.DeleteIndexedDB = *o.DeleteIndexedDB
	}
	return out
}
