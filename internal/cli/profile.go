package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile 本地客户端配置，keys 为 名字 -> base58 私钥
type Profile struct {
	Addr       string            `yaml:"addr"`
	Format     string            `yaml:"format"`
	Commitment string            `yaml:"commitment"`
	Keys       map[string]string `yaml:"keys"`
}

func LoadProfile(path string) (*Profile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(content, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return &p, nil
}
