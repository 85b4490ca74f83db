package export

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/noah-isme/demandes-api/pkg/config"
)

// Signature asset formats accepted by the renderer.
const (
	SignaturePNG  = "PNG"
	SignatureJPEG = "JPG"
	SignatureSVG  = "SVG"
)

const (
	signatureWidthMM  = 50.0
	signatureHeightMM = 25.0
)

// ErrSignatureAsset is wrapped by every failure caused by the signature input.
var ErrSignatureAsset = errors.New("signature asset unusable")

// SignatureAsset is a raster or vector signature image.
type SignatureAsset struct {
	Format string
	Data   []byte
}

// Field is one labelled line of the request summary block.
type Field struct {
	Label string
	Value string
}

// AuthorizationDocument is everything printed on an authorization.
type AuthorizationDocument struct {
	Letterhead       config.Letterhead
	Reference        string
	Subject          string
	Addressee        string
	Paragraphs       []string
	Fields           []Field
	SignerName       string
	IssuedAt         time.Time
	VerificationCode string
	Signature        *SignatureAsset
}

// AuthorizationRenderer lays out authorization letters with gofpdf.
type AuthorizationRenderer struct{}

// NewAuthorizationRenderer constructs the renderer.
func NewAuthorizationRenderer() *AuthorizationRenderer {
	return &AuthorizationRenderer{}
}

// Render produces the PDF bytes. Identical documents yield identical bytes.
func (r *AuthorizationRenderer) Render(doc AuthorizationDocument) ([]byte, error) {
	if doc.Reference == "" {
		return nil, fmt.Errorf("authorization requires a reference")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pinDates(pdf, doc.IssuedAt)
	pdf.SetTitle("Authorization "+doc.Reference, false)
	pdf.SetSubject(doc.Subject, false)
	pdf.SetMargins(20, 18, 20)
	pdf.SetAutoPageBreak(true, 22)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	lh := doc.Letterhead
	pdf.SetFooterFunc(func() {
		pdf.SetY(-18)
		pdf.SetFont("Arial", "", 7)
		for _, line := range lh.FooterLines {
			pdf.CellFormat(0, 3.5, tr(line), "", 1, "C", false, 0, "")
		}
		pdf.SetFont("Arial", "I", 7)
		pdf.CellFormat(0, 3.5, tr("Verification code: "+doc.VerificationCode), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	r.header(pdf, tr, doc)
	r.body(pdf, tr, doc)
	if err := r.signatureBlock(pdf, tr, doc); err != nil {
		return nil, err
	}

	if pdf.Err() {
		return nil, fmt.Errorf("layout authorization %s: %w", doc.Reference, pdf.Error())
	}
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render authorization %s: %w", doc.Reference, err)
	}
	return buf.Bytes(), nil
}

func (r *AuthorizationRenderer) header(pdf *gofpdf.Fpdf, tr func(string) string, doc AuthorizationDocument) {
	lh := doc.Letterhead
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(85, 5, tr(strings.ToUpper(lh.Ministry)), "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 5, tr(strings.ToUpper(lh.Country)), "", 1, "R", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(85, 5, tr(lh.Directorate), "", 0, "L", false, 0, "")
	pdf.SetFont("Arial", "I", 9)
	pdf.CellFormat(0, 5, tr(lh.Motto), "", 1, "R", false, 0, "")
	pdf.Ln(3)
	left, _, right, _ := pdf.GetMargins()
	width, _ := pdf.GetPageSize()
	y := pdf.GetY()
	pdf.SetLineWidth(0.4)
	pdf.Line(left, y, width-right, y)
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 5, tr("No. "+doc.Reference), "", 1, "L", false, 0, "")
	place := lh.City
	if place != "" {
		place += ", "
	}
	pdf.CellFormat(0, 5, tr(place+doc.IssuedAt.UTC().Format("2 January 2006")), "", 1, "R", false, 0, "")
	if doc.Addressee != "" {
		pdf.Ln(2)
		pdf.CellFormat(0, 5, tr("To: "+doc.Addressee), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 12)
	pdf.MultiCell(0, 6, tr("Subject: "+doc.Subject), "", "L", false)
	pdf.Ln(4)
}

func (r *AuthorizationRenderer) body(pdf *gofpdf.Fpdf, tr func(string) string, doc AuthorizationDocument) {
	pdf.SetFont("Arial", "", 10)
	for _, paragraph := range doc.Paragraphs {
		pdf.MultiCell(0, 5.5, tr(paragraph), "", "J", false)
		pdf.Ln(3)
	}
	if len(doc.Fields) == 0 {
		return
	}
	pdf.Ln(1)
	for _, field := range doc.Fields {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(50, 6, tr(field.Label), "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 6, tr(field.Value), "", "L", false)
	}
	pdf.Ln(6)
}

// signatureBlock is anchored to the left margin directly below the body.
func (r *AuthorizationRenderer) signatureBlock(pdf *gofpdf.Fpdf, tr func(string) string, doc AuthorizationDocument) error {
	left, _, _, bottom := pdf.GetMargins()
	_, pageHeight := pdf.GetPageSize()
	blockHeight := signatureHeightMM + 20
	if pdf.GetY()+blockHeight > pageHeight-bottom {
		pdf.AddPage()
	}

	pdf.SetX(left)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 5, tr(doc.Letterhead.SignerTitle), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	x, y := left, pdf.GetY()
	if doc.Signature != nil {
		if err := drawSignature(pdf, x, y, *doc.Signature, doc.Reference); err != nil {
			return err
		}
	}
	pdf.SetXY(left, y+signatureHeightMM+2)
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 5, tr(doc.SignerName), "", 1, "L", false, 0, "")
	return nil
}

func drawSignature(pdf *gofpdf.Fpdf, x, y float64, asset SignatureAsset, reference string) error {
	if len(asset.Data) == 0 {
		return fmt.Errorf("%w: empty data", ErrSignatureAsset)
	}
	switch strings.ToUpper(asset.Format) {
	case SignaturePNG, SignatureJPEG, "JPEG":
		format := strings.ToUpper(asset.Format)
		if format == "JPEG" {
			format = SignatureJPEG
		}
		name := "signature-" + reference
		opts := gofpdf.ImageOptions{ImageType: format}
		info := pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(asset.Data))
		if pdf.Err() || info == nil {
			return fmt.Errorf("%w: %v", ErrSignatureAsset, pdf.Error())
		}
		w, h := fitBox(info.Width(), info.Height(), signatureWidthMM, signatureHeightMM)
		pdf.ImageOptions(name, x, y, w, h, false, opts, 0, "")
	case SignatureSVG:
		svg, err := gofpdf.SVGBasicParse(asset.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSignatureAsset, err)
		}
		if svg.Wd <= 0 || svg.Ht <= 0 || len(svg.Segments) == 0 {
			return fmt.Errorf("%w: svg has no drawable extent", ErrSignatureAsset)
		}
		w, _ := fitBox(svg.Wd, svg.Ht, signatureWidthMM, signatureHeightMM)
		pdf.SetXY(x, y)
		pdf.SetLineWidth(0.35)
		pdf.SetDrawColor(20, 20, 80)
		pdf.SVGBasicWrite(&svg, w/svg.Wd)
		pdf.SetDrawColor(0, 0, 0)
	default:
		return fmt.Errorf("%w: unsupported format %q", ErrSignatureAsset, asset.Format)
	}
	if pdf.Err() {
		return fmt.Errorf("%w: %v", ErrSignatureAsset, pdf.Error())
	}
	return nil
}

func fitBox(w, h, maxW, maxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return maxW, maxH
	}
	scale := maxW / w
	if h*scale > maxH {
		scale = maxH / h
	}
	return w * scale, h * scale
}
