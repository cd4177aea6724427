package loader

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"commotrend/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// 中文说明：
// 策略 Profile 加载器。serve 模式提交回测时按名引用一组策略参数
// （再平衡策略、EMA 窗口、标的、初始资金），文件改动后热更新。

// ProfileDefinition 单个命名策略档。
type ProfileDefinition struct {
	Name        string   `mapstructure:"-"`
	Policy      string   `mapstructure:"policy"`
	Universe    []string `mapstructure:"universe"`
	SpanShort   int      `mapstructure:"span_short"`
	SpanMedium  int      `mapstructure:"span_medium"`
	SpanLong    int      `mapstructure:"span_long"`
	InitialCash float64  `mapstructure:"initial_cash"`
	Default     bool     `mapstructure:"default"`
}

// FileConfig profile 配置文件的完整结构。
type FileConfig struct {
	Profiles map[string]ProfileDefinition `mapstructure:"profiles"`
}

// ProfileSnapshot 对外暴露的只读快照。
type ProfileSnapshot struct {
	Version  int64
	LoadedAt time.Time
	Profiles map[string]ProfileDefinition
}

// DefaultProfile 返回标了 default 的档；没有则按名取第一个。
func (s ProfileSnapshot) DefaultProfile() (ProfileDefinition, bool) {
	if len(s.Profiles) == 0 {
		return ProfileDefinition{}, false
	}
	names := make([]string, 0, len(s.Profiles))
	for name, def := range s.Profiles {
		if def.Default {
			return def, true
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return s.Profiles[names[0]], true
}

// ChangeListener 配置变更回调。
type ChangeListener func(ProfileSnapshot)

// ProfileLoader 从 YAML 加载 profile 并监听热更新。
type ProfileLoader struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  ProfileSnapshot
	listeners []ChangeListener
}

// NewProfileLoader 读取配置并开始监听 FS 事件。
func NewProfileLoader(path string) (*ProfileLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("profile loader 需要路径")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取 profile 配置失败: %w", err)
	}
	loader := &ProfileLoader{path: path, v: v}
	if err := loader.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := loader.reload(); err != nil {
			logger.Errorf("profile 热更新失败 (%s): %v", evt.Name, err)
			return
		}
		loader.notify()
	})
	v.WatchConfig()
	return loader, nil
}

// Snapshot 返回当前快照（深拷贝）。
func (l *ProfileLoader) Snapshot() ProfileSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneSnapshot(l.snapshot)
}

// Get 按名取档。
func (l *ProfileLoader) Get(name string) (ProfileDefinition, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	def, ok := l.snapshot.Profiles[name]
	return def, ok
}

// Subscribe 注册监听器。
func (l *ProfileLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

func (l *ProfileLoader) notify() {
	l.mu.RLock()
	snap := cloneSnapshot(l.snapshot)
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("profile listener panic: %v", r)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func (l *ProfileLoader) reload() error {
	var fileCfg FileConfig
	if err := l.v.Unmarshal(&fileCfg); err != nil {
		return fmt.Errorf("解析 profile 配置失败: %w", err)
	}
	normalized := make(map[string]ProfileDefinition, len(fileCfg.Profiles))
	for name, def := range fileCfg.Profiles {
		normalized[name] = normalizeProfile(name, def)
	}
	l.mu.Lock()
	l.snapshot = ProfileSnapshot{
		Version:  l.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Profiles: normalized,
	}
	l.mu.Unlock()
	logger.Infof("profile loader 载入 %d 个策略档（%s）", len(normalized), filepath.Base(l.path))
	return nil
}

func normalizeProfile(name string, def ProfileDefinition) ProfileDefinition {
	def.Name = name
	if def.Policy == "" {
		def.Policy = "long_only"
	}
	if def.SpanShort <= 0 {
		def.SpanShort = 5
	}
	if def.SpanMedium <= def.SpanShort {
		def.SpanMedium = 50
	}
	if def.SpanLong <= def.SpanMedium {
		def.SpanLong = 250
	}
	if def.InitialCash <= 0 {
		def.InitialCash = 1_000_000
	}
	out := make([]string, 0, len(def.Universe))
	for _, ticker := range def.Universe {
		ticker = strings.TrimSpace(ticker)
		if ticker != "" {
			out = append(out, ticker)
		}
	}
	def.Universe = out
	return def
}

func cloneSnapshot(src ProfileSnapshot) ProfileSnapshot {
	dst := ProfileSnapshot{Version: src.Version, LoadedAt: src.LoadedAt}
	dst.Profiles = make(map[string]ProfileDefinition, len(src.Profiles))
	for name, def := range src.Profiles {
		def.Universe = append([]string(nil), def.Universe...)
		dst.Profiles[name] = def
	}
	return dst
}
