package speech

import "strings"

// voiceAliases 角色音色到火山引擎发音人的映射
var voiceAliases = map[string]string{
	"en_default": "en_female_amy_jupiter_bigtts",
	"en_male":    "en_male_glen_emo_v2_mars_bigtts",
	"en_female":  "en_female_skye_emo_v2_mars_bigtts",
}

// ResolveVoice 返回请求音色对应的发音人，未指定时使用配置的默认值
func ResolveVoice(requested, fallback string) string {
	requested = strings.TrimSpace(requested)
	if requested == "" || strings.EqualFold(requested, "default") {
		return strings.TrimSpace(fallback)
	}
	if mapped, ok := voiceAliases[strings.ToLower(requested)]; ok {
		return mapped
	}
	return requested
}
