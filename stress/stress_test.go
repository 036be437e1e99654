package stress

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	cfgpkg "gridnews/internal/config"
	"gridnews/internal/pipeline"
	"gridnews/pkg/contract"
)

const games = 16

// scoreboard 构造一整周已完赛的比赛，开球时间分布在周日与周一。
func scoreboard() string {
	evs := make([]string, 0, games)
	for i := 0; i < games; i++ {
		kick := time.Date(2025, 11, 9, 18, 0, 0, 0, time.UTC).Add(time.Duration(i) * 3 * time.Hour)
		evs = append(evs, fmt.Sprintf(`{"id":"%d","date":%q,"status":{"type":{"completed":true,"state":"post"}},
"competitions":[{"competitors":[
{"homeAway":"home","score":"%d","team":{"displayName":"Home %d","abbreviation":"H%d"}},
{"homeAway":"away","score":"%d","team":{"displayName":"Away %d","abbreviation":"A%d"}}]}]}`,
			500+i, kick.Format("2006-01-02T15:04Z"), 20+i, i, i, 17+2*i, i, i))
	}
	return `{"events":[` + strings.Join(evs, ",") + `]}`
}

// server 模拟比分与战报接口；战报固定延迟以放大并发差异。
func server(delay time.Duration, recaps *atomic.Int32) *httptest.Server {
	board := scoreboard()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/scoreboard"):
			_, _ = w.Write([]byte(board))
		case strings.HasSuffix(r.URL.Path, "/summary"):
			recaps.Add(1)
			time.Sleep(delay)
			_, _ = fmt.Fprintf(w, `{"article":{"story":"<p>Recap %s.</p>"}}`, r.URL.Query().Get("event"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

// baseConfig 构造走 ESPN 抓取与 mock 生成的最小可运行配置。
func baseConfig(root, baseURL string, conc int) cfgpkg.Config {
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Storage.WorkDir = filepath.Join(root, "data")
	cfg.Storage.DocsDir = filepath.Join(root, "docs")
	cfg.Archive.Path = filepath.Join(root, "docs", "archive.json")
	cfg.Logging.Level = "error"
	cfg.Fetch.BaseURL = baseURL
	cfg.Fetch.Concurrency = conc
	cfg.Fetch.MaxRetries = -1
	cfg.Generate.Provider = "mock"
	cfg.Provider["mock"] = cfgpkg.Provider{
		Client:  "mock",
		Options: map[string]any{"prefix": "STRESS"},
	}
	return cfg
}

// TestStress 在不同战报并发度下运行整周流水线并记录延迟统计。
func TestStress(t *testing.T) {
	if testing.Short() {
		t.Skip("short 模式跳过压力测试")
	}
	levels := []int{1, 4, 16}
	for _, conc := range levels {
		t.Run(fmt.Sprintf("concurrency_%d", conc), func(t *testing.T) {
			var recaps atomic.Int32
			srv := server(5*time.Millisecond, &recaps)
			defer srv.Close()

			const runs = 3
			successes := 0
			latencies := make([]time.Duration, 0, runs)
			for i := 0; i < runs; i++ {
				root := t.TempDir()
				app, err := cfgpkg.Assemble(context.Background(), baseConfig(root, srv.URL, conc), nil)
				if err != nil {
					t.Fatalf("装配失败: %v", err)
				}
				start := time.Now()
				res := app.Orchestrator.Run(context.Background(), pipeline.Request{Date: "20251109", Mode: "week"})
				dur := time.Since(start)
				_ = app.Close()
				if res.Err != nil || res.State != pipeline.Succeeded {
					t.Errorf("run %d: %s %v", i, res.State, res.Err)
					continue
				}
				if n := augmentedCount(t, filepath.Join(root, "data", "2025-week10", "augmented.json")); n != games {
					t.Errorf("run %d: 增强记录 %d 条，期望 %d", i, n, games)
					continue
				}
				successes++
				latencies = append(latencies, dur)
			}
			if successes == 0 {
				t.Fatalf("全部运行失败")
			}
			if got := int(recaps.Load()); got != runs*games {
				t.Fatalf("战报请求 %d 次，期望 %d", got, runs*games)
			}
			sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
			var total time.Duration
			for _, d := range latencies {
				total += d
			}
			avg := total / time.Duration(len(latencies))
			idx := int(math.Ceil(float64(len(latencies))*0.95)) - 1
			if idx < 0 {
				idx = 0
			}
			t.Logf("并发%d 成功率%.2f 平均%v 95%%延迟%v", conc, float64(successes)/float64(runs), avg, latencies[idx])
		})
	}
}

func augmentedCount(t *testing.T, path string) int {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取增强文档: %v", err)
	}
	var set contract.AugmentedRecordSet
	if err := json.Unmarshal(b, &set); err != nil {
		t.Fatalf("解析增强文档: %v", err)
	}
	return len(set.Records)
}
