//go:build linux

package device

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestDeviceFactoryRejectsMissingAdapter(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	dev, err := DeviceFactory(Options{HCIDevice: 250, Logger: logger})

	assert.Error(t, err)
	assert.Nil(t, dev)
}
