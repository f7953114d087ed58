package cleanup

import (
	"context"
	"strings"

	"cleantrail/internal/storage"
	"cleantrail/pkg/model"
	"cleantrail/pkg/profile"
)

// AdaptProfile 按主机名自适应选择清理配置：
// 匿名网络后缀选 paranoid，受信任站点选 relaxed，其余默认 strict。
// 选择总是以 auto 来源落盘；manual 选择具有粘性，由调用方先行判断。
func (o *Orchestrator) AdaptProfile(ctx context.Context, hostname string) {
	if !storage.GetBool(ctx, o.store, storage.KeyAdaptiveProfiles, true) {
		return
	}
	switch {
	case strings.HasSuffix(hostname, ".onion"):
		o.SetProfile(ctx, profile.KeyParanoid, profile.SourceAuto)
	case o.cacheTrusted(ctx, hostname):
		o.SetProfile(ctx, profile.KeyRelaxed, profile.SourceAuto)
	default:
		o.SetProfile(ctx, profile.KeyStrict, profile.SourceAuto)
	}
}

// SetProfile 持久化生效配置及其来源并广播变更事件。
// 未知配置键回退到 balanced。
func (o *Orchestrator) SetProfile(ctx context.Context, key, source string) {
	if !profile.Valid(key) {
		key = profile.KeyBalanced
	}
	if err := o.store.Set(ctx, map[string]any{
		storage.KeyActiveProfile: key,
		storage.KeyProfileSource: source,
	}); err != nil {
		o.log.Err(err, "持久化清理配置失败", "profile", key)
		return
	}
	if o.profileChanged != nil {
		o.profileChanged(model.ProfileEvent{Profile: key, Source: source})
	}
}
