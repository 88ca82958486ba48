package config

import (
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"TaskHub/logger"
)

// Watcher 监听 .env 文件变化并热加载配置
// 用于运行中切换短信沙箱开关、更换微信凭据等场景，不需要重启进程。
type Watcher struct {
	mu      sync.RWMutex
	current *Config
	done    chan struct{}
	onLoad  []func(*Config)
}

// NewWatcher wraps an already-loaded config.
func NewWatcher(cfg *Config) *Watcher {
	return &Watcher{current: cfg, done: make(chan struct{})}
}

// Current returns the latest loaded config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnReload 注册配置重载回调
func (w *Watcher) OnReload(fn func(*Config)) {
	w.mu.Lock()
	w.onLoad = append(w.onLoad, fn)
	w.mu.Unlock()
}

// Start begins watching the .env file. No-op when the file does not exist.
func (w *Watcher) Start(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		logger.Info("配置文件不存在，跳过热加载", logger.String("path", path))
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				w.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("配置文件监听错误", logger.ErrorField(err))
			case <-w.done:
				return
			}
		}
	}()

	logger.Info("配置热加载已启动", logger.String("path", path))
	return nil
}

// Stop terminates the watch loop.
func (w *Watcher) Stop() {
	close(w.done)
}

func (w *Watcher) reload() {
	cfg := Load()
	w.mu.Lock()
	w.current = cfg
	callbacks := append([]func(*Config){}, w.onLoad...)
	w.mu.Unlock()

	logger.Info("配置已重新加载",
		logger.Bool("smsSandbox", cfg.SMSSandbox),
		logger.String("logLevel", cfg.LogLevel))
	for _, fn := range callbacks {
		fn(cfg)
	}
}
