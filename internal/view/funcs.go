// Package view 提供模板使用的辅助函数。
package view

import (
	"fmt"
	"html/template"
	"math"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// FuncMap 返回模板函数集合。
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"abbreviate": Abbreviate,
		"timeago":    TimeAgo,
		"date":       FormatDate,
		"add": func(a, b int) int {
			return a + b
		},
		"sub": func(a, b int) int {
			return a - b
		},
		"safeHTML": func(s string) template.HTML {
			return template.HTML(s)
		},
	}
}

// Abbreviate 把数字缩写为 500、11.5K、2.5M、1B 这样的形式，无法识别的值原样输出。
func Abbreviate(value any) string {
	n, ok := toInt64(value)
	if !ok {
		return fmt.Sprint(value)
	}

	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}

	switch {
	case n < 1_000:
		return sign + strconv.FormatInt(n, 10)
	case n < 1_000_000:
		return sign + scaled(n, 1_000, "K")
	case n < 1_000_000_000:
		return sign + scaled(n, 1_000_000, "M")
	default:
		return sign + scaled(n, 1_000_000_000, "B")
	}
}

func scaled(n, unit int64, suffix string) string {
	if n%unit == 0 {
		return strconv.FormatInt(n/unit, 10) + suffix
	}
	return strconv.FormatFloat(float64(n)/float64(unit), 'f', 1, 64) + suffix
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

// TimeAgo 输出相对时间，例如 “3 hours ago”。
func TimeAgo(value any) string {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return humanize.Time(v)
	case *time.Time:
		if v == nil || v.IsZero() {
			return ""
		}
		return humanize.Time(*v)
	default:
		return ""
	}
}

// FormatDate 以 2006-01-02 格式输出日期，空值返回空串。
func FormatDate(value any) string {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.Format("2006-01-02")
	case *time.Time:
		if v == nil || v.IsZero() {
			return ""
		}
		return v.Format("2006-01-02")
	default:
		return ""
	}
}
