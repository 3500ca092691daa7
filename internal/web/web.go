// Package web はダッシュボードとサインイン画面のHTMLテンプレートを埋め込みます。
package web

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var files embed.FS

// Templates は埋め込んだテンプレートを解析して返します。
func Templates() (*template.Template, error) {
	return template.ParseFS(files, "templates/*.html")
}
