package version

import "fmt"

// Version/Commit 可在构建时通过 -ldflags 注入，默认使用开发占位符。
var (
	Version = "0.1.0"
	Commit  = "dev"
)

// Name is the binary name printed by --version and used as the User-Agent product.
const Name = "api-cache"

// Full 返回便于 CLI 打印的完整版本信息。
func Full() string {
	return fmt.Sprintf("%s %s (%s)", Name, Version, Commit)
}

// UserAgent returns the product token sent to upstream APIs.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", Name, Version)
}
