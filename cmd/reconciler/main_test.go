package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestSetupLoggerDefaultLevel(t *testing.T) {
	t.Setenv("DREG_LOG_LEVEL", "")
	setupLogger()

	if log.GetLevel() != log.InfoLevel {
		t.Errorf("expected info level, got %s", log.GetLevel())
	}
}

func TestSetupLoggerEnvOverride(t *testing.T) {
	t.Setenv("DREG_LOG_LEVEL", "debug")
	setupLogger()
	defer log.SetLevel(log.InfoLevel)

	if log.GetLevel() != log.DebugLevel {
		t.Errorf("expected debug level, got %s", log.GetLevel())
	}
}

func TestSetupLoggerInvalidLevelKeepsInfo(t *testing.T) {
	t.Setenv("DREG_LOG_LEVEL", "chatty")
	setupLogger()

	if log.GetLevel() != log.InfoLevel {
		t.Errorf("expected info level, got %s", log.GetLevel())
	}
}
