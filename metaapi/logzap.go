package metaapi

import "go.uber.org/zap"

type zapLog struct {
	sugar *zap.SugaredLogger
}

var _ Logger = (*zapLog)(nil)

// ZapLogger adapts a zap sugared logger to the client's Logger interface.
func ZapLogger(sugar *zap.SugaredLogger) Logger {
	return &zapLog{sugar: sugar}
}

func (z *zapLog) Infof(format string, v ...interface{}) {
	z.sugar.Infof(format, v...)
}

func (z *zapLog) Warnf(format string, v ...interface{}) {
	z.sugar.Warnf(format, v...)
}

func (z *zapLog) Errorf(format string, v ...interface{}) {
	z.sugar.Errorf(format, v...)
}
