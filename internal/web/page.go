package web

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"
)

// PageData feeds the upload page.
type PageData struct {
	FirstDataRow int
	MaxRows      int
	DefaultMode  string
}

// IndexPage renders the upload form. The script posts the form, polls
// /progress/{id} once a second and shows the download link when the job
// succeeds.
func IndexPage(data PageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		first := strconv.Itoa(data.FirstDataRow)
		checked := func(mode string) string {
			if mode == data.DefaultMode {
				return " checked"
			}
			return ""
		}

		parts := []string{
			`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>Mail merge</title>`,
			`<style>body{font-family:sans-serif;max-width:40rem;margin:2rem auto}label{display:block;margin:.6rem 0}` +
				`progress{width:100%}.error{color:#b00020}</style></head><body>`,
			`<h1>Mail merge</h1>`,
			`<form id="merge" method="post" action="/merge" enctype="multipart/form-data">`,
			`<label>Spreadsheet (.xlsx) <input type="file" name="excel" accept=".xlsx" required></label>`,
			`<label>Word templates (.docx) <input type="file" name="word_templates" accept=".docx" multiple required></label>`,
			`<label>First row <input type="number" name="row_start" min="` + templ.EscapeString(first) + `" value="` + templ.EscapeString(first) + `" required></label>`,
			`<label>Last row <input type="number" name="row_end" min="` + templ.EscapeString(first) + `" required></label>`,
			`<p>Field names are read from row ` + templ.EscapeString(strconv.Itoa(data.FirstDataRow-1)) +
				`; at most ` + templ.EscapeString(strconv.Itoa(data.MaxRows)) + ` rows per request.</p>`,
			`<label><input type="radio" name="mode" value="combined"` + checked("combined") + `> One document per template</label>`,
			`<label><input type="radio" name="mode" value="separate"` + checked("separate") + `> One document per row</label>`,
			`<button type="submit">Merge</button></form>`,
			`<div id="status" hidden><progress id="bar" max="100" value="0"></progress><p id="text"></p><p id="link"></p></div>`,
			`<script>` + pageScript + `</script></body></html>`,
		}
		for _, p := range parts {
			if _, err := io.WriteString(w, p); err != nil {
				return err
			}
		}
		return nil
	})
}

const pageScript = `
const form = document.getElementById("merge");
const status = document.getElementById("status");
const text = document.getElementById("text");
const link = document.getElementById("link");
const bar = document.getElementById("bar");
form.addEventListener("submit", async (ev) => {
  ev.preventDefault();
  status.hidden = false; link.textContent = ""; text.className = "";
  const res = await fetch(form.action, {method: "POST", body: new FormData(form)});
  const body = await res.json();
  if (!res.ok) {
    text.className = "error";
    text.textContent = (body.issues || []).map(i => i.field + ": " + i.message).join("; ") || body.error;
    return;
  }
  poll(body.progress_url);
});
async function poll(url) {
  const res = await fetch(url);
  const p = await res.json();
  if (!res.ok) { text.className = "error"; text.textContent = p.error; return; }
  bar.value = p.percent;
  const eta = p.eta_known ? ", about " + Math.ceil(p.eta_seconds) + "s left" : "";
  text.textContent = p.status + " " + p.completed + "/" + p.total + eta;
  if (p.status === "failed") { text.className = "error"; text.textContent = p.message; return; }
  if (p.download_ready) {
    const a = document.createElement("a");
    a.href = p.download_url; a.textContent = "Download " + p.result_name;
    link.replaceChildren(a);
    return;
  }
  setTimeout(() => poll(url), 1000);
}
`
