package logger

import (
	"go-approval/internal/config"
	"go-approval/internal/database"

	"go.uber.org/zap"
)

// AdminAlertKey marks entries that must reach administrators, e.g. requests
// parked because no approver could be resolved.
const AdminAlertKey = "admin_alert"

// AdminAlert is the field that routes an entry into the admin alert sink.
func AdminAlert() zap.Field {
	return zap.Bool(AdminAlertKey, true)
}

// NewLogger builds the service logger. With a Mongo database available the
// core is tee'd into the admin alert collection.
func NewLogger(cfg *config.Config, mongodb *database.MongodbDB) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.IsProduction() {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.EncoderConfig.FunctionKey = "func"

	baseLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	if !mongodb.Enabled() {
		return baseLogger, nil
	}

	writer := NewAlertWriter(mongodb.DB.Collection("admin_alerts"), cfg.AppId)
	return zap.New(NewAlertCore(baseLogger.Core(), writer), zap.AddCaller()), nil
}
