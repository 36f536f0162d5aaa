package util

import (
	"os"
	"path/filepath"
	"strings"
)

// GetDeviceName read the name of a device
func GetDeviceName(devicePath string) string {
	namePath := devicePath + "/name"
	content, _ := os.ReadFile(namePath)
	name := string(content)
	return strings.TrimSpace(name)
}

// GetLabel read the label of a in/output of a device
func GetLabel(devicePath string, input string) string {
	labelPath := strings.TrimSuffix(devicePath+"/"+input, "input") + "label"

	content, _ := os.ReadFile(labelPath)
	label := string(content)
	if len(label) <= 0 {
		_, label = filepath.Split(devicePath)
	}
	return strings.TrimSpace(label)
}

// GetDeviceModalias read the modalias of a device
func GetDeviceModalias(devicePath string) string {
	modaliasPath := devicePath + "/device/modalias"
	content, _ := os.ReadFile(modaliasPath)
	return strings.TrimSpace(string(content))
}

// GetDeviceType read the type of a device
func GetDeviceType(devicePath string) string {
	typePath := devicePath + "/device/type"
	content, _ := os.ReadFile(typePath)
	return strings.TrimSpace(string(content))
}
