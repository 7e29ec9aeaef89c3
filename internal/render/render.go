// Package render は状態からUIツリーを生成する。
//
// Page は純粋関数で、内部状態を持たない。
// ユーザー操作はフォーム送信として意図エンドポイントに届き、状態機械のイベントに1対1で対応する。
package render

import (
	"fmt"
	"io"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hitoshi/gymjournal/internal/journal"
)

// 意図エンドポイントのパス。handlerパッケージのルーティングと一致させる。
const (
	PathSignIn       = "/intents/sign-in"
	PathSignOut      = "/intents/sign-out"
	PathSave         = "/intents/save"
	PathDraftContent = "/intents/draft/content"
	PathDraftDate    = "/intents/draft/date"
	PathDraftTime    = "/intents/draft/time"
)

// CSRFFieldName はフォームに埋め込むCSRFトークンのフィールド名。
const CSRFFieldName = "csrf_token"

// 要素ID。テストとフロントエンドのスクリプトから参照する。
const (
	IDSignIn     = "sign-in"
	IDSignOut    = "sign-out"
	IDDraftForm  = "draft-form"
	IDSave       = "save"
	IDErrorLine  = "error-line"
	IDJournal    = "journal"
	IDUserEmail  = "user-email"
	IDJournalRow = "journal-row"
)

// Options は状態以外の描画パラメータ。
type Options struct {
	// Title はページタイトル。空の場合は "Gym Journal"。
	Title string
	// CSRFToken は各フォームに埋め込むトークン。空の場合は埋め込まない。
	CSRFToken string
}

// ErrorLine はエラー行の文字列を返す。
// 3フィールドを空文字で補い、半角スペース1つで連結する。整形はしない。
func ErrorLine(e journal.ErrorInfo) string {
	return deref(e.Code) + " " + deref(e.Message) + " " + deref(e.Credential)
}

// Page は状態からHTMLドキュメントのツリーを生成する。
func Page(s journal.State, opts Options) *html.Node {
	title := opts.Title
	if title == "" {
		title = "Gym Journal"
	}

	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})

	root := element(atom.Html, attr("lang", "en"))
	doc.AppendChild(root)

	head := element(atom.Head)
	head.AppendChild(element(atom.Meta, attr("charset", "utf-8")))
	titleEl := element(atom.Title)
	titleEl.AppendChild(text(title))
	head.AppendChild(titleEl)
	root.AppendChild(head)

	body := element(atom.Body)
	body.AppendChild(Main(s, opts))
	root.AppendChild(body)

	return doc
}

// Main はページ本体の<main>要素を生成する。
func Main(s journal.State, opts Options) *html.Node {
	m := element(atom.Main)

	sess, signedIn := s.Auth.Session()
	if !signedIn {
		m.AppendChild(buttonForm(IDSignIn, PathSignIn, "Sign in with Google", opts))
	} else {
		p := element(atom.P, attr("id", IDUserEmail))
		p.AppendChild(text(sess.Email))
		m.AppendChild(p)
		m.AppendChild(buttonForm(IDSignOut, PathSignOut, "Sign out", opts))
		m.AppendChild(draftForm(s.Draft, opts))
	}

	errLine := element(atom.P, attr("id", IDErrorLine))
	errLine.AppendChild(text(ErrorLine(s.Err)))
	m.AppendChild(errLine)

	m.AppendChild(journalTable(s.Entries))

	return m
}

// Write はツリーをHTMLとして書き出す。
func Write(w io.Writer, n *html.Node) error {
	if err := html.Render(w, n); err != nil {
		return fmt.Errorf("failed to render html: %w", err)
	}
	return nil
}

func buttonForm(id, action, label string, opts Options) *html.Node {
	form := element(atom.Form, attr("method", "post"), attr("action", action))
	appendCSRF(form, opts)
	btn := element(atom.Button, attr("id", id), attr("type", "submit"))
	btn.AppendChild(text(label))
	form.AppendChild(btn)
	return form
}

// draftForm は下書きフォームを生成する。
// 各入力はdata-change-actionに個別の変更意図のパスを持ち、保存ボタンは3フィールドをまとめて送る。
func draftForm(d journal.DraftEntry, opts Options) *html.Node {
	form := element(atom.Form,
		attr("id", IDDraftForm),
		attr("method", "post"),
		attr("action", PathSave),
	)
	appendCSRF(form, opts)

	form.AppendChild(input("content", "text", "What did you do?", d.Content, PathDraftContent))
	form.AppendChild(input("date", "text", "Date", d.Date, PathDraftDate))
	form.AppendChild(input("time", "text", "Time", d.Time, PathDraftTime))

	btn := element(atom.Button, attr("id", IDSave), attr("type", "submit"))
	btn.AppendChild(text("Save"))
	form.AppendChild(btn)
	return form
}

func input(name, typ, placeholder, value, changeAction string) *html.Node {
	return element(atom.Input,
		attr("id", "draft-"+name),
		attr("name", name),
		attr("type", typ),
		attr("placeholder", placeholder),
		attr("value", value),
		attr("data-change-action", changeAction),
	)
}

func journalTable(entries []journal.JournalEntry) *html.Node {
	table := element(atom.Table, attr("id", IDJournal))

	thead := element(atom.Thead)
	hr := element(atom.Tr)
	for _, h := range []string{"Content", "Date", "Time"} {
		th := element(atom.Th)
		th.AppendChild(text(h))
		hr.AppendChild(th)
	}
	thead.AppendChild(hr)
	table.AppendChild(thead)

	tbody := element(atom.Tbody)
	for _, e := range entries {
		tr := element(atom.Tr, attr("class", IDJournalRow))
		for _, v := range []string{e.Content, e.Date, e.Time} {
			td := element(atom.Td)
			td.AppendChild(text(v))
			tr.AppendChild(td)
		}
		tbody.AppendChild(tr)
	}
	table.AppendChild(tbody)

	return table
}

func appendCSRF(form *html.Node, opts Options) {
	if opts.CSRFToken == "" {
		return
	}
	form.AppendChild(element(atom.Input,
		attr("type", "hidden"),
		attr("name", CSRFFieldName),
		attr("value", opts.CSRFToken),
	))
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     attrs,
	}
}

func attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
