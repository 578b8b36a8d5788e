package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/aj9599/raas-platform/services/calc"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

var previewFuncs = template.FuncMap{
	"money":  calc.FormatMoney,
	"rate":   calc.FormatRate,
	"energy": calc.FormatEnergy,
	"pct":    func(v float64) string { return calc.FormatMoney(v) + "%" },
}

var previewTemplate = template.Must(template.New("invoice").Funcs(previewFuncs).Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<style>
body { font-family: Arial, sans-serif; margin: 40px; color: #222; width: 760px; }
h1 { color: #16803d; margin-bottom: 0; }
.number { color: #666; }
.status { display: inline-block; padding: 4px 12px; border-radius: 4px; background: #fff3cd; }
.status.paid { background: #d4edda; }
.status.overdue { background: #f8d7da; }
table { width: 100%; border-collapse: collapse; margin: 16px 0; }
th { text-align: left; border-bottom: 1px solid #ccc; background: #f9f9f9; }
td.num, th.num { text-align: right; }
.total { font-size: 28px; font-weight: bold; text-align: right; background: #f9f9f9; padding: 12px; }
.savings { color: #16803d; }
.footer { color: #666; font-style: italic; margin-top: 24px; }
</style>
</head>
<body>
<h1>{{.T.Invoice}}</h1>
<div class="number">#{{.Invoice.InvoiceNumber}}</div>
<p><span class="status {{.Invoice.Status}}">{{.T.StatusLabel .Invoice.Status}}</span></p>
{{if .Sender.SenderName}}<p><strong>{{.Sender.SenderName}}</strong><br>{{.Sender.SenderDocument}}</p>{{end}}
<p><strong>{{.T.BillTo}}:</strong> {{.CustomerName}}</p>
<p>{{.T.Period}}: {{.Invoice.ReferencePeriod}}<br>{{.T.DueDate}}: {{.DueDate}}</p>
<table>
<tr><th>{{.T.Installation}}</th><th class="num">{{.T.Consumption}} (kWh)</th></tr>
{{range .Invoice.Installations}}<tr><td>{{.Code}} - {{.Name}}</td><td class="num">{{energy .Consumption}}</td></tr>
{{end}}</table>
<table>
<tr><td>{{.T.Billable}}</td><td class="num">{{energy .Invoice.KwhQuantity}} kWh</td></tr>
<tr><td>{{.T.Tariff}}</td><td class="num">{{rate .Invoice.Tariff}}</td></tr>
<tr><td>{{.T.Discount}}</td><td class="num">{{pct .Invoice.DiscountPct}}</td></tr>
<tr><td>{{.T.BilledRate}}</td><td class="num">{{rate .Invoice.BilledRate}}</td></tr>
<tr><td>{{.T.GrossValue}}</td><td class="num">{{.Gross}}</td></tr>
<tr class="savings"><td>{{.T.Savings}}</td><td class="num">{{.Savings}} ({{pct .Invoice.SavingsPct}})</td></tr>
</table>
<div class="total">{{.T.Total}}: {{.Total}}</div>
<p>{{.T.CO2Avoided}}: {{money .Invoice.CO2Kg}} kg &middot; {{.T.Trees}}: {{energy .Invoice.TreesEquivalent}}</p>
{{if .Sender.InvoiceMessageFooter}}<p class="footer">{{.Sender.InvoiceMessageFooter}}</p>{{end}}
<p class="footer">{{.T.ThankYou}}</p>
</body>
</html>
`))

// PreviewRenderer turns an invoice into a PNG through headless Chrome.
type PreviewRenderer struct {
	chromePath string
	timeout    time.Duration
	logger     *zap.Logger
}

func NewPreviewRenderer(chromePath string, logger *zap.Logger) *PreviewRenderer {
	return &PreviewRenderer{chromePath: chromePath, timeout: 30 * time.Second, logger: logger}
}

type previewData struct {
	InvoiceDocument
	T            InvoiceTranslations
	Lang         string
	CustomerName string
	DueDate      string
	Gross        string
	Savings      string
	Total        string
}

// RenderHTML produces the HTML page that is screenshotted.
func (pr *PreviewRenderer) RenderHTML(doc InvoiceDocument) (string, error) {
	if doc.Invoice == nil {
		return "", invalidf("invoice is required")
	}
	lang := "pt-BR"
	if doc.Language == "en" {
		lang = "en"
	}
	data := previewData{
		InvoiceDocument: doc,
		T:               GetTranslations(doc.Language),
		Lang:            lang,
		CustomerName:    doc.customerName(),
		DueDate:         formatDueDate(doc.Invoice.DueDate),
		Gross:           doc.money(doc.Invoice.GrossValue),
		Savings:         doc.money(doc.Invoice.Savings),
		Total:           doc.money(doc.Invoice.TotalAmount),
	}

	var buf bytes.Buffer
	if err := previewTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render preview template: %v", err)
	}
	return buf.String(), nil
}

// RenderPNG loads the HTML into a blank tab and takes a full page screenshot.
func (pr *PreviewRenderer) RenderPNG(ctx context.Context, doc InvoiceDocument) ([]byte, error) {
	html, err := pr.RenderHTML(doc)
	if err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.WindowSize(840, 1188))
	if pr.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(pr.chromePath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()
	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, pr.timeout)
	defer cancelTimeout()

	var png []byte
	err = chromedp.Run(taskCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.FullScreenshot(&png, 100),
	)
	if err != nil {
		pr.logger.Error("[PREVIEW] Render failed", zap.String("invoice", doc.Invoice.InvoiceNumber), zap.Error(err))
		return nil, fmt.Errorf("preview render failed: %w", err)
	}
	return png, nil
}
