// internal/pkg/keys/keys.go
package keys

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBlankID 在用任何空白标识构建 Key 之前返回，调用方可据此与
// "Key 不存在" 类错误区分开。
var ErrBlankID = errors.New("keys: identifier must not be blank")

// Key 的格式约定（env 为部署环境前缀，保证多环境共用实例时互不污染）:
//
//	{env}stock:available:{sku}     商品可售库存计数
//	{env}stock:reserved:{sku}      商品预占库存计数
//	{env}stock:hold:{sku}:{order}  单个订单的预占记录（带 TTL）
//	{env}stock:holds               预占到期索引（zset, score=过期时间戳）
//	{env}coupon:stock:{code}       优惠券剩余库存计数
//	{env}coupon:issued:{code}:{u}  用户已领取标记（带 TTL）
//	{env}event:start:{eventId}     活动开始触发 Key（靠 TTL 过期触发）
//	{env}event:status:{eventId}    活动状态 Key（值为 OPEN）
//	{env}event:schedule            活动调度索引（zset, score=开始时间戳）
//	{env}event:lock:{eventId}      活动开启去重锁
//
// event 域的 Key 带 {eventId} hashtag，保证同一活动的各个 Key 落在同一
// slot 上，也方便从过期通知里反解出 eventId。
type Builder struct {
	prefix string
}

// NewBuilder 创建 Key 构建器。envPrefix 来自部署配置，统一归一化为
// 以分隔符结尾，允许传空（表示无环境隔离）。
func NewBuilder(envPrefix string) *Builder {
	prefix := strings.TrimSpace(envPrefix)
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &Builder{prefix: prefix}
}

func (b *Builder) checkID(ids ...string) error {
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return ErrBlankID
		}
	}
	return nil
}

func (b *Builder) StockAvailable(sku string) (string, error) {
	if err := b.checkID(sku); err != nil {
		return "", err
	}
	return fmt.Sprintf("%sstock:available:%s", b.prefix, sku), nil
}

func (b *Builder) StockReserved(sku string) (string, error) {
	if err := b.checkID(sku); err != nil {
		return "", err
	}
	return fmt.Sprintf("%sstock:reserved:%s", b.prefix, sku), nil
}

func (b *Builder) StockHold(sku, orderID string) (string, error) {
	if err := b.checkID(sku, orderID); err != nil {
		return "", err
	}
	return fmt.Sprintf("%sstock:hold:%s:%s", b.prefix, sku, orderID), nil
}

// StockHoldIndex 是全局唯一的预占到期索引。
func (b *Builder) StockHoldIndex() string {
	return b.prefix + "stock:holds"
}

func (b *Builder) CouponStock(code string) (string, error) {
	if err := b.checkID(code); err != nil {
		return "", err
	}
	return fmt.Sprintf("%scoupon:stock:%s", b.prefix, code), nil
}

func (b *Builder) CouponIssued(code, userID string) (string, error) {
	if err := b.checkID(code, userID); err != nil {
		return "", err
	}
	return fmt.Sprintf("%scoupon:issued:%s:%s", b.prefix, code, userID), nil
}

func (b *Builder) EventStartFlag(eventID string) (string, error) {
	if err := b.checkID(eventID); err != nil {
		return "", err
	}
	return fmt.Sprintf("%sevent:start:{%s}", b.prefix, eventID), nil
}

func (b *Builder) EventStatus(eventID string) (string, error) {
	if err := b.checkID(eventID); err != nil {
		return "", err
	}
	return fmt.Sprintf("%sevent:status:{%s}", b.prefix, eventID), nil
}

// EventSchedule 是全局唯一的活动调度索引。
func (b *Builder) EventSchedule() string {
	return b.prefix + "event:schedule"
}

func (b *Builder) EventLock(eventID string) (string, error) {
	if err := b.checkID(eventID); err != nil {
		return "", err
	}
	return fmt.Sprintf("%sevent:lock:{%s}", b.prefix, eventID), nil
}

// EventStartPrefix 返回活动触发 Key 的前缀，过期通知监听器用它做匹配。
func (b *Builder) EventStartPrefix() string {
	return b.prefix + "event:start:"
}

// EventIDFromKey 从形如 "...event:start:{evt-1}" 的 Key 中截取首个
// '{' 与 '}' 之间的 eventId。
func EventIDFromKey(key string) (string, error) {
	start := strings.Index(key, "{")
	if start < 0 {
		return "", fmt.Errorf("keys: no hashtag segment in %q", key)
	}
	end := strings.Index(key[start:], "}")
	if end < 0 {
		return "", fmt.Errorf("keys: unterminated hashtag segment in %q", key)
	}
	id := key[start+1 : start+end]
	if id == "" {
		return "", ErrBlankID
	}
	return id, nil
}

// HoldMember 把一条预占编码成到期索引的成员。数量必须编码进成员里：
// 预占 Key 本身会因 TTL 消失，清扫器恢复 reserved 计数时只能从成员
// 中拿回数量。
func HoldMember(sku, orderID string, qty int64) string {
	return fmt.Sprintf("%s|%s|%d", sku, orderID, qty)
}

// HoldMemberPrefix 返回不含数量的成员前缀，Lua 脚本在读到预占数量后
// 自行拼出完整成员。
func HoldMemberPrefix(sku, orderID string) string {
	return fmt.Sprintf("%s|%s|", sku, orderID)
}

// ParseHoldMember 解析到期索引成员。
func ParseHoldMember(member string) (sku, orderID string, qty int64, err error) {
	parts := strings.Split(member, "|")
	if len(parts) != 3 {
		return "", "", 0, fmt.Errorf("keys: malformed hold member %q", member)
	}
	qty, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", "", 0, fmt.Errorf("keys: malformed hold member %q: %w", member, err)
	}
	return parts[0], parts[1], qty, nil
}
