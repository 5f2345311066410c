package routes

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/api-cache/internal/cache"
	"github.com/any-hub/api-cache/internal/logging"
	"github.com/any-hub/api-cache/internal/metrics"
	"github.com/any-hub/api-cache/internal/registry"
)

// Options 汇总诊断接口需要读取的组件。
type Options struct {
	Registry       *registry.Registry
	Stores         []*cache.FileStore
	Metrics        *metrics.Metrics
	Logger         *logrus.Logger
	CachingEnabled bool
}

// RegisterDiagnostics 暴露 /-/hosts、/-/cache/stats、/-/cache/purge 与 /-/metrics。
func RegisterDiagnostics(app *fiber.App, opts Options) {
	if app == nil || opts.Registry == nil {
		return
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	app.Get("/-/hosts", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"caching_enabled": opts.CachingEnabled,
			"hosts":           encodeHosts(opts.Registry.List()),
		})
	})

	app.Get("/-/cache/stats", func(c fiber.Ctx) error {
		result := make([]domainStatsPayload, 0, len(opts.Stores))
		for _, store := range opts.Stores {
			stats, err := store.Stats(c.Context())
			if err != nil {
				opts.Logger.WithFields(logrus.Fields{"action": "cache_stats", "domain": store.Domain()}).
					WithError(err).Error("cache_stats_failed")
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_stats_failed"})
			}
			result = append(result, domainStatsPayload{
				Domain:     store.Domain(),
				TTLSeconds: int64(store.TTL().Seconds()),
				Entries:    stats.Entries,
				Bytes:      stats.Bytes,
			})
		}
		return c.JSON(fiber.Map{"domains": result})
	})

	app.Post("/-/cache/purge", func(c fiber.Ctx) error {
		result := make([]purgePayload, 0, len(opts.Stores))
		for _, store := range opts.Stores {
			report, err := store.Purge(c.Context())
			opts.Metrics.RecordPurge(report.FilesRemoved, report.DirsRemoved)
			fields := logrus.Fields{
				"action":        "purge",
				"domain":        store.Domain(),
				"files_removed": report.FilesRemoved,
				"dirs_removed":  report.DirsRemoved,
				"trigger":       "diagnostics",
			}
			if err != nil {
				opts.Logger.WithFields(fields).WithError(err).Error("purge_failed")
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error":  "purge_failed",
					"domain": store.Domain(),
				})
			}
			opts.Logger.WithFields(fields).Info("purge_complete")
			result = append(result, purgePayload{Domain: store.Domain(), PurgeReport: report})
		}
		return c.JSON(fiber.Map{"domains": result})
	})

	app.Get("/-/metrics", adaptor.HTTPHandler(opts.Metrics.Handler()))
}

type hostPayload struct {
	Host            string `json:"host"`
	KeyName         string `json:"key_name"`
	ExpireInSeconds int64  `json:"expire_in_seconds"`
	Upstream        string `json:"upstream,omitempty"`
}

type domainStatsPayload struct {
	Domain     string `json:"domain"`
	TTLSeconds int64  `json:"ttl_seconds"`
	Entries    int    `json:"entries"`
	Bytes      int64  `json:"bytes"`
}

type purgePayload struct {
	Domain string `json:"domain"`
	cache.PurgeReport
}

func encodeHosts(policies []registry.HostPolicy) []hostPayload {
	result := make([]hostPayload, 0, len(policies))
	for _, policy := range policies {
		item := hostPayload{
			Host:            policy.Host,
			KeyName:         policy.KeyName,
			ExpireInSeconds: int64(policy.ExpireIn.Seconds()),
		}
		if policy.UpstreamURL != nil {
			item.Upstream = policy.UpstreamURL.String()
		}
		result = append(result, item)
	}
	return result
}
