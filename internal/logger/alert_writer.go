package logger

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap/zapcore"
)

// Alert is one admin-visible log entry.
type Alert struct {
	Level   zapcore.Level
	Message string
	Caller  string
	Fields  map[string]interface{}
	At      time.Time
}

type alertRecord struct {
	AppID     string                 `bson:"app_id"`
	Level     string                 `bson:"level"`
	Message   string                 `bson:"message"`
	Caller    string                 `bson:"caller,omitempty"`
	Fields    map[string]interface{} `bson:"fields,omitempty"`
	CreatedAt time.Time              `bson:"created_at"`
}

// AlertWriter persists alerts asynchronously.
type AlertWriter struct {
	collection *mongo.Collection
	alerts     chan Alert
	appId      string
}

func NewAlertWriter(collection *mongo.Collection, appId string) *AlertWriter {
	writer := &AlertWriter{
		collection: collection,
		alerts:     make(chan Alert, 1000),
		appId:      appId,
	}

	go writer.process()

	return writer
}

// AddAlert never blocks the caller; a full buffer drops the alert.
func (w *AlertWriter) AddAlert(alert Alert) {
	select {
	case w.alerts <- alert:
	default:
		fmt.Println("Admin alert channel full! Dropping alert:", alert.Message)
	}
}

func (w *AlertWriter) process() {
	for alert := range w.alerts {
		record := alertRecord{
			AppID:     w.appId,
			Level:     alert.Level.String(),
			Message:   alert.Message,
			Caller:    alert.Caller,
			Fields:    alert.Fields,
			CreatedAt: alert.At.UTC(),
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, _ = w.collection.InsertOne(ctx, record)
		cancel()
	}
}
