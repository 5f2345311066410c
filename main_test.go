package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/any-hub/api-cache/internal/httpcache"
	"github.com/any-hub/api-cache/internal/logging"
)

func TestParseCLIFlagsPriority(t *testing.T) {
	t.Setenv("API_CACHE_CONFIG", "/tmp/env.toml")

	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("应优先使用环境变量，得到 %s", opts.configPath)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml", "--check-config"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" || !opts.checkOnly {
		t.Fatalf("flag 应高于环境变量，得到 %+v", opts)
	}
}

func TestParseCLIFlagsDefaultPath(t *testing.T) {
	t.Setenv("API_CACHE_CONFIG", "")
	opts, err := parseCLIFlags(nil)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "config.toml" {
		t.Fatalf("默认配置路径应为 config.toml，得到 %s", opts.configPath)
	}
	if _, err := parseCLIFlags([]string{"--unknown"}); err == nil {
		t.Fatalf("未知参数应返回错误")
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "valid.toml"), checkOnly: true})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d", code)
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "missing.toml"), checkOnly: true})
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
	if !strings.Contains(stdErr.(*bytes.Buffer).String(), "加载配置失败") {
		t.Fatalf("错误输出应说明配置加载失败")
	}
}

func TestRunVersionOutput(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{showVersion: true})
	if code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(stdOut.(*bytes.Buffer).String(), "api-cache") {
		t.Fatalf("version 输出应包含 api-cache 标识")
	}
}

func TestRuntimeServesFromCacheAfterFirstFetch(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"path":%q}`, r.URL.RequestURI())
	}))
	defer upstream.Close()

	storage := t.TempDir()
	configPath := writeConfigFile(t, fmt.Sprintf(`
StoragePath = "%s"
Domain = "api-cache"
CachingEnabled = true
PurgeInterval = 0

[[Host]]
Host = "api.example.com"
Upstream = "%s"
ExpireIn = "10m"
KeyName = "example"
`, storage, upstream.URL))

	cfg := loadConfig(t, configPath)
	rt, err := buildRuntime(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("构建运行时失败: %v", err)
	}
	app, err := newHTTPApp(cfg, rt, logging.Discard())
	if err != nil {
		t.Fatalf("构建 Fiber 应用失败: %v", err)
	}

	for i, want := range []httpcache.Outcome{httpcache.OutcomeStored, httpcache.OutcomeHit} {
		req := httptest.NewRequest(http.MethodGet, "http://api.example.com/1/items?b=2&a=1", nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("请求 %d 失败: %v", i, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("请求 %d 状态码异常: %d", i, resp.StatusCode)
		}
		if got := resp.Header.Get(httpcache.HeaderOutcome); got != string(want) {
			t.Fatalf("请求 %d 期望 %s，得到 %s", i, want, got)
		}
		if !strings.Contains(string(body), "/1/items") {
			t.Fatalf("响应体异常: %s", body)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("第二次请求应命中缓存，上游被调用 %d 次", calls.Load())
	}

	if rt.backups.Root() != filepath.Join(storage, "api-cache-backup") {
		t.Fatalf("backup 目录异常: %s", rt.backups.Root())
	}
	stats, err := rt.backups.Stats(t.Context())
	if err != nil || stats.Entries != 1 {
		t.Fatalf("应写入一条 backup，得到 %+v err=%v", stats, err)
	}
}
