/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package traces

import (
	"context"
	"fmt"

	otellog "go.opentelemetry.io/otel/log"

	"github.com/sirupsen/logrus"
)

// LogHook forwards logrus entries at or above minLevel to an OpenTelemetry
// logger, carrying entry fields as attributes.
type LogHook struct {
	logger   otellog.Logger
	minLevel logrus.Level
}

func NewLogHook(logger otellog.Logger, minLevel logrus.Level) *LogHook {
	return &LogHook{logger: logger, minLevel: minLevel}
}

func (h *LogHook) Levels() []logrus.Level {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= h.minLevel {
			levels = append(levels, l)
		}
	}
	return levels
}

func (h *LogHook) Fire(entry *logrus.Entry) error {
	var record otellog.Record
	record.SetTimestamp(entry.Time)
	record.SetSeverity(severity(entry.Level))
	record.SetSeverityText(entry.Level.String())
	record.SetBody(otellog.StringValue(entry.Message))
	for k, v := range entry.Data {
		record.AddAttributes(otellog.String(k, fmt.Sprint(v)))
	}

	ctx := entry.Context
	if ctx == nil {
		ctx = context.Background()
	}
	h.logger.Emit(ctx, record)
	return nil
}

func severity(level logrus.Level) otellog.Severity {
	switch level {
	case logrus.PanicLevel, logrus.FatalLevel:
		return otellog.SeverityFatal
	case logrus.ErrorLevel:
		return otellog.SeverityError
	case logrus.WarnLevel:
		return otellog.SeverityWarn
	case logrus.InfoLevel:
		return otellog.SeverityInfo
	default:
		return otellog.SeverityDebug
	}
}
