// Package pdffixture собирает небольшие корректные PDF документы для тестов.
package pdffixture

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sort"
	"strings"
)

// Page описание страницы
type Page struct {
	XObjects    map[string]int // имя ресурса -> номер объекта
	Fonts       map[string]int
	Inherit     bool // ресурсы берутся из корня дерева страниц
	NoResources bool // ключ Resources отсутствует, действует наследование
	// EmptyResources пустой словарь Resources, наследование перекрыто
	EmptyResources bool
}

// Builder накапливает объекты и страницы
type Builder struct {
	objects       []string
	pages         []Page
	rootResources map[string]int
}

// New создает пустой построитель
func New() *Builder {
	return &Builder{}
}

func (b *Builder) add(body string) int {
	b.objects = append(b.objects, body)
	return len(b.objects)
}

func (b *Builder) set(nr int, body string) {
	b.objects[nr-1] = body
}

// AddStream добавляет поток; dict задается без Length
func (b *Builder) AddStream(dict string, data []byte) int {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<< %s /Length %d >>\nstream\n", dict, len(data))
	sb.Write(data)
	sb.WriteString("\nendstream")
	return b.add(sb.String())
}

// AddObject добавляет произвольный объект
func (b *Builder) AddObject(body string) int {
	return b.add(body)
}

// AddJPEG добавляет изображение DCTDecode
func (b *Builder) AddJPEG(img image.Image, quality int) int {
	return b.AddJPEGWithDict(img, quality, "")
}

// AddJPEGWithDict добавляет изображение DCTDecode с дополнительными ключами
func (b *Builder) AddJPEGWithDict(img image.Image, quality int, extra string) int {
	data := JPEG(img, quality)
	cs := "/DeviceRGB"
	if _, ok := img.(*image.Gray); ok {
		cs = "/DeviceGray"
	}
	bounds := img.Bounds()
	dict := fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace %s /BitsPerComponent 8 /Filter /DCTDecode%s",
		bounds.Dx(), bounds.Dy(), cs, prefixSpace(extra))
	return b.AddStream(dict, data)
}

// AddFlateRGB добавляет изображение с несжатыми RGB отсчетами под FlateDecode
func (b *Builder) AddFlateRGB(img image.Image) int {
	bounds := img.Bounds()
	raw := make([]byte, 0, bounds.Dx()*bounds.Dy()*3)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			raw = append(raw, c.R, c.G, c.B)
		}
	}
	dict := fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /FlateDecode",
		bounds.Dx(), bounds.Dy())
	return b.AddStream(dict, Deflate(raw))
}

// AddRawImage добавляет изображение с произвольным словарем и отсчетами под FlateDecode
func (b *Builder) AddRawImage(width, height int, colorSpace string, bpc int, samples []byte) int {
	dict := fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace %s /BitsPerComponent %d /Filter /FlateDecode",
		width, height, colorSpace, bpc)
	return b.AddStream(dict, Deflate(samples))
}

// AddForm добавляет Form XObject
func (b *Builder) AddForm() int {
	return b.AddStream("/Type /XObject /Subtype /Form /BBox [0 0 10 10]", []byte("0 0 m 10 10 l S"))
}

// AddFont добавляет шрифт Helvetica
func (b *Builder) AddFont() int {
	return b.add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
}

// SetRootResources задает XObject ресурсы корня дерева страниц
func (b *Builder) SetRootResources(xobjects map[string]int) {
	b.rootResources = xobjects
}

// AddPage добавляет страницу
func (b *Builder) AddPage(p Page) {
	b.pages = append(b.pages, p)
}

// Bytes собирает документ с корректной таблицей xref
func (b *Builder) Bytes() []byte {
	pagesNr := b.add("")
	kids := make([]string, 0, len(b.pages))
	for _, p := range b.pages {
		content := b.AddStream("", []byte("q 10 0 0 10 0 0 cm Q"))
		var sb strings.Builder
		fmt.Fprintf(&sb, "<< /Type /Page /Parent %d 0 R /MediaBox [0 0 200 200] /Contents %d 0 R", pagesNr, content)
		if p.EmptyResources {
			sb.WriteString(" /Resources << >>")
		} else if !p.NoResources && !p.Inherit {
			sb.WriteString(" /Resources " + resources(p.XObjects, p.Fonts))
		}
		sb.WriteString(" >>")
		kids = append(kids, fmt.Sprintf("%d 0 R", b.add(sb.String())))
	}

	pages := fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d", strings.Join(kids, " "), len(kids))
	if b.rootResources != nil {
		pages += " /Resources " + resources(b.rootResources, nil)
	}
	b.set(pagesNr, pages+" >>")
	catalogNr := b.add(fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesNr))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	offsets := make([]int, len(b.objects))
	for i, body := range b.objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(b.objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(b.objects)+1, catalogNr, xref)
	return buf.Bytes()
}

func resources(xobjects, fonts map[string]int) string {
	var sb strings.Builder
	sb.WriteString("<<")
	if len(xobjects) > 0 {
		sb.WriteString(" /XObject " + refDict(xobjects))
	}
	if len(fonts) > 0 {
		sb.WriteString(" /Font " + refDict(fonts))
	}
	sb.WriteString(" >>")
	return sb.String()
}

func refDict(refs map[string]int) string {
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	sb.WriteString("<<")
	for _, name := range names {
		fmt.Fprintf(&sb, " /%s %d 0 R", name, refs[name])
	}
	sb.WriteString(" >>")
	return sb.String()
}

func prefixSpace(s string) string {
	if s == "" {
		return ""
	}
	return " " + s
}

// Deflate сжимает данные zlib, как это делает FlateDecode
func Deflate(data []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, _ = zw.Write(data)
	_ = zw.Close()
	return buf.Bytes()
}

// JPEG кодирует изображение
func JPEG(img image.Image, quality int) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Photo детерминированное изображение с градиентами и мелкой текстурой
func Photo(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	seed := uint32(2463534242)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			seed ^= seed << 13
			seed ^= seed >> 17
			seed ^= seed << 5
			noise := uint8(seed % 48)
			img.Set(x, y, color.RGBA{
				R: uint8(x*255/max(width, 1)) ^ noise,
				G: uint8(y*255/max(height, 1)) + noise,
				B: uint8((x+y)*4) ^ (noise >> 1),
				A: 255,
			})
		}
	}
	return img
}

// SimpleDocument документ из одной страницы с одним JPEG изображением
func SimpleDocument(width, height int) []byte {
	b := New()
	img := b.AddJPEG(Photo(width, height), 95)
	b.AddPage(Page{XObjects: map[string]int{"Im0": img}})
	return b.Bytes()
}
