package util

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadEnv 按环境加载 .env 文件（.env.development / .env.production）
// 已存在的环境变量优先，不会被文件覆盖
func LoadEnv(env string) error {
	filename := ".env." + env
	f, err := os.Open(filename)
	if err != nil {
		// 回退到普通 .env
		f, err = os.Open(".env")
		if err != nil {
			return fmt.Errorf("no env file found: %w", err)
		}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

// GetEnv 获取字符串环境变量
func GetEnv(key string) string {
	return os.Getenv(key)
}

// GetEnvDefault 获取字符串环境变量，缺省时返回默认值
func GetEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetIntEnv 获取整型环境变量，解析失败返回 0
func GetIntEnv(key string) int64 {
	v, _ := strconv.ParseInt(os.Getenv(key), 10, 64)
	return v
}

// GetBoolEnv 获取布尔环境变量
func GetBoolEnv(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}
