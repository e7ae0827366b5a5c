package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/skillboard/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars(t)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.DBDriver, convey.ShouldEqual, "sqlite")
				convey.So(cfg.ReplyWithLeaderboard, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			clearConfigEnvVars(t)
			t.Setenv("SKILLBOARD_ADDR", ":8080")
			t.Setenv("SKILLBOARD_DB_DRIVER", "pgx")
			t.Setenv("SKILLBOARD_DB_DSN", "postgres://u:p@localhost/skillboard")
			t.Setenv("SKILLBOARD_PARSE_MODE", "score")
			t.Setenv("SKILLBOARD_DECAY_AMOUNT", "0.5")
			t.Setenv("SKILLBOARD_QUEUE_SIZE", "64")
			t.Setenv("SKILLBOARD_REPLY_WITH_LEADERBOARD", "true")
			t.Setenv("SKILLBOARD_MIN_MU", "5")
			t.Setenv("SKILLBOARD_NATS_QUEUE_GROUP", "raters")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.DBDriver, convey.ShouldEqual, "pgx")
				convey.So(cfg.DBDSN, convey.ShouldEqual, "postgres://u:p@localhost/skillboard")
				convey.So(cfg.ParseMode, convey.ShouldEqual, "score")
				convey.So(cfg.DecayAmount, convey.ShouldEqual, 0.5)
				convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.ReplyWithLeaderboard, convey.ShouldBeTrue)
				convey.So(cfg.MinMu, convey.ShouldEqual, 5.0)
				convey.So(cfg.NATSQueueGroup, convey.ShouldEqual, "raters")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			clearConfigEnvVars(t)
			path := writeConfigFile(t, `
addr: ":9090"
model: bradley-terry
queue_size: 300
report_author_name: Puzzler
webhook_url: http://hooks.local/abc
webhook_rate_per_sec: 2.5
`)
			t.Setenv("SKILLBOARD_CONFIG", path)
			t.Setenv("SKILLBOARD_QUEUE_SIZE", "32")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Model, convey.ShouldEqual, "bradley-terry")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 32)
				convey.So(cfg.ReportAuthorName, convey.ShouldEqual, "Puzzler")
				convey.So(cfg.WebhookRatePerSec, convey.ShouldEqual, 2.5)
				convey.So(cfg.DBDriver, convey.ShouldEqual, "sqlite")
			})
		})

		convey.Convey("When the config file is missing", func() {
			clearConfigEnvVars(t)
			t.Setenv("SKILLBOARD_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When a value has the wrong type", func() {
			clearConfigEnvVars(t)
			t.Setenv("SKILLBOARD_QUEUE_SIZE", "lots")

			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When a value is invalid", func() {
			clearConfigEnvVars(t)
			t.Setenv("SKILLBOARD_PARSE_MODE", "points")

			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skillboard.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// clearConfigEnvVars blanks out overrides inherited from the environment.
func clearConfigEnvVars(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, config.EnvPrefix) {
			t.Setenv(name, "")
			_ = os.Unsetenv(name)
		}
	}
}
