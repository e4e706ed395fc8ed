package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// systemConfigDebounce 吸收編輯器一次存檔產生的連續事件
const systemConfigDebounce = 500 * time.Millisecond

// WatchSystemConfig 監看單一設定檔(system.json)。偵測到寫入或重建後,
// 經 debounce 發出一次通知。監看目標是檔案所在目錄而非檔案本身,
// 原子存檔(先寫暫存檔再 rename)才不會讓 watch 失效。
// 監看 goroutine 於 ctx 結束時退出並關閉通知 channel。
func WatchSystemConfig(ctx context.Context, path string) <-chan struct{} {
	notify := make(chan struct{}, 1)

	abs, err := filepath.Abs(path)
	if err != nil {
		slog.Error("Failed to resolve config path", "file", path, "error", err)
		close(notify)
		return notify
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create config watcher", "error", err)
		close(notify)
		return notify
	}

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		slog.Warn("Config directory not watchable, hot reload disabled", "dir", filepath.Dir(abs), "error", err)
	}

	go func() {
		defer watcher.Close()
		defer close(notify)

		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Rename) {
					debounce = time.After(systemConfigDebounce)
				}

			case <-debounce:
				debounce = nil
				slog.Info("System config changed", "file", abs)
				// 非阻塞送出,消費端還沒處理完就合併這次通知
				select {
				case notify <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config watcher error", "error", err)
			}
		}
	}()

	return notify
}
