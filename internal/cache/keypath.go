package cache

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// rootFileName 用于既无路径 basename 也无 query/fragment 的 key（例如 http://host）。
// 转义后的 URI 中 '%' 只会以 %XX 形式出现，因此该名字不会与真实 key 冲突。
const rootFileName = "%root"

var filenameReplacer = strings.NewReplacer("?", "_", "#", "_", "=", "_", "&", "_")

// keyPath 把 key 解析为 URI 并映射到 domain 根目录下的相对路径：
//
//	<host>/<dirname(path)>/<basename(path)>[_<query>][_<fragment>]
//
// 文件名再经 sanitizeFilename 处理。映射是纯函数，不触碰文件系统。
func keyPath(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	u, err := url.Parse(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	var segments []string
	if host := u.Hostname(); host != "" {
		segments = append(segments, host)
	}

	var name string
	if escaped := strings.TrimRight(u.EscapedPath(), "/"); escaped != "" {
		if dir := path.Dir(escaped); dir != "/" && dir != "." {
			segments = append(segments, strings.Split(strings.Trim(dir, "/"), "/")...)
		}
		name = path.Base(escaped)
	}
	if u.RawQuery != "" || u.ForceQuery {
		name += "_" + u.RawQuery
	}
	if strings.Contains(key, "#") {
		name += "_" + u.EscapedFragment()
	}

	// query/fragment 中的 '/' 不能变成目录分隔符
	name = sanitizeFilename(strings.ReplaceAll(name, "/", "%2F"))
	switch name {
	case "":
		name = rootFileName
	case ".", "..":
		return "", fmt.Errorf("%w: %q has no usable file name", ErrInvalidKey, key)
	}
	return path.Join(append(segments, name)...), nil
}

// sanitizeFilename 依次把 ? # = & 替换为 _，去掉 %22，再把 %20 和逗号替换为 -。
func sanitizeFilename(name string) string {
	name = filenameReplacer.Replace(name)
	name = strings.ReplaceAll(name, "%22", "")
	name = strings.ReplaceAll(name, "%20", "-")
	return strings.ReplaceAll(name, ",", "-")
}
