package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/deltastream-lab/tradesim/internal/config"
	"github.com/deltastream-lab/tradesim/internal/logger"
	"github.com/deltastream-lab/tradesim/pkg/errors"
)

type EngineTestSuite struct {
	suite.Suite
	logger *logger.Logger
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (suite *EngineTestSuite) SetupSuite() {
	log, err := logger.NewLogger()
	suite.Require().NoError(err)
	suite.logger = log
}

func (suite *EngineTestSuite) TearDownSuite() {
	if suite.logger != nil {
		_ = suite.logger.Sync()
	}
}

// memoryConfig keeps tests off the filesystem and off fixed ports.
func (suite *EngineTestSuite) memoryConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Database.Path = ""
	cfg.Server.Addr = "127.0.0.1:0"

	return cfg
}

func (suite *EngineTestSuite) TestNewWiresDefaults() {
	eng, err := New(suite.memoryConfig(), suite.logger)
	suite.Require().NoError(err)
	defer eng.Close()

	suite.NotNil(eng.manager)
	suite.NotNil(eng.walk)
	suite.Nil(eng.nats)
	suite.Same(eng.bus, eng.publisher)
	suite.NoError(eng.store.Ping())
}

func (suite *EngineTestSuite) TestNewCreatesDatabaseDirectory() {
	cfg := suite.memoryConfig()
	cfg.Database.Path = filepath.Join(suite.T().TempDir(), "nested", "trades.duckdb")

	eng, err := New(cfg, suite.logger)
	suite.Require().NoError(err)
	defer eng.Close()

	info, err := os.Stat(filepath.Dir(cfg.Database.Path))
	suite.Require().NoError(err)
	suite.True(info.IsDir())
}

func (suite *EngineTestSuite) TestNewSkipsWalkWhenVolatilityIsZero() {
	cfg := suite.memoryConfig()
	cfg.Market.WalkVolatility = 0

	eng, err := New(cfg, suite.logger)
	suite.Require().NoError(err)
	defer eng.Close()

	suite.Nil(eng.walk)
}

func (suite *EngineTestSuite) TestNewRejectsInvalidConfig() {
	cfg := suite.memoryConfig()
	cfg.InitialCash = -5

	_, err := New(cfg, suite.logger)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *EngineTestSuite) TestNewFailsWhenNATSUnreachable() {
	cfg := suite.memoryConfig()
	cfg.Events.NATSURL = "nats://127.0.0.1:1"

	_, err := New(cfg, suite.logger)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodePublishFailed))
}

func (suite *EngineTestSuite) TestRunStopsOnCancel() {
	eng, err := New(suite.memoryConfig(), suite.logger)
	suite.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- eng.Run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case runErr := <-done:
		suite.NoError(runErr)
	case <-time.After(5 * time.Second):
		suite.Fail("engine did not stop after cancel")
	}
}
