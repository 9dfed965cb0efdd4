// Package migrations 内嵌调用记录表的 SQL 迁移脚本。
package migrations

import "embed"

// Files 按文件名前缀的版本号排序执行。
//
//go:embed *.sql
var Files embed.FS
