// Command bridged is the demo host binary: it loads configuration,
// boots a Listener Supervisor against an in-process fake native proxy,
// serves a Lua-scripted handler, and exposes the admin surface
// (/healthz, /metrics, /debug/connections) on its own address.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/hnolan/httpbridge/internal/admin"
	"github.com/hnolan/httpbridge/internal/config"
	"github.com/hnolan/httpbridge/internal/ffi/fake"
	"github.com/hnolan/httpbridge/internal/handler/luahandler"
	"github.com/hnolan/httpbridge/internal/metrics"
	"github.com/hnolan/httpbridge/internal/supervisor"
)

const defaultScript = `
response = {
	status = 200,
	headers = {
		{ name = "Content-Type", value = "text/plain" },
	},
	body = "hello from the bridged demo handler, method=" .. request.method .. " path=" .. request.path,
}
`

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	scriptPath := flag.String("script", "", "path to a Lua handler script (optional; a demo echo script is used otherwise)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	script := defaultScript
	if *scriptPath != "" {
		raw, err := os.ReadFile(*scriptPath)
		if err != nil {
			log.Fatalf("failed to read lua script: %v", err)
		}
		script = string(raw)
	}

	h := luahandler.New(script)
	proxy := fake.New(1)
	reg := metrics.New()
	logEntry := logrus.NewEntry(logrus.StandardLogger())

	sup := supervisor.New(cfg.ToSupervisorConfig(), proxy, h, logEntry, nil).WithMetrics(reg)

	rp, err := sup.Start(context.Background())
	if err != nil {
		log.Fatalf("supervisor failed to start: %v", err)
	}
	log.Printf("bridge proxy bound on port %d (transport=%s)", rp.BoundPort, cfg.TransportMode)

	if cfg.AdminAddr != "" {
		adminSrv := admin.New(reg, func() admin.ConnectionsInfo {
			info := rp.ConnectionsInfo()
			return admin.ConnectionsInfo{
				Total:   info.Total,
				Active:  info.Active,
				Idle:    info.Idle,
				Closing: info.Closing,
			}
		})
		log.Printf("admin surface listening on %s", cfg.AdminAddr)
		go func() {
			if err := http.ListenAndServe(cfg.AdminAddr, adminSrv); err != nil {
				log.Printf("admin server error: %v", err)
			}
		}()
	}

	select {}
}
