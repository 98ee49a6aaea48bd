package pdfgraph

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"pdfshrink/internal/domain/entities"
)

// Walker лениво перечисляет потоки изображений документа.
// Страницы обходятся в порядке документа, ресурсы страницы в порядке имен.
// Каждая идентичность выдается один раз. Обходчик не изменяет документ
// и не перезапускается: после окончания Next всегда возвращает false.
type Walker struct {
	doc     *Document
	pageIdx int
	page    int
	names   []string
	xobj    types.Dict
	seen    map[entities.ObjectID]bool
	current entities.ImageStream
	err     error
	done    bool
}

// NewWalker создает обходчик документа
func NewWalker(doc *Document) *Walker {
	return &Walker{
		doc:  doc,
		seen: make(map[entities.ObjectID]bool),
	}
}

// Next переходит к следующему изображению
func (w *Walker) Next() bool {
	if w.done {
		return false
	}
	if w.doc == nil {
		w.err = fmt.Errorf("%w: документ не открыт", entities.ErrUnparsableDocument)
		w.done = true
		return false
	}
	for {
		for len(w.names) > 0 {
			name := w.names[0]
			w.names = w.names[1:]
			if img, ok := w.visit(name); ok {
				w.current = img
				return true
			}
		}
		if !w.advancePage() {
			w.done = true
			w.current = entities.ImageStream{}
			return false
		}
	}
}

// Image возвращает текущее изображение
func (w *Walker) Image() entities.ImageStream {
	return w.current
}

// Err возвращает ошибку обхода
func (w *Walker) Err() error {
	return w.err
}

// advancePage загружает словарь XObject следующей страницы
func (w *Walker) advancePage() bool {
	for w.pageIdx < len(w.doc.pages) {
		p := w.doc.pages[w.pageIdx]
		w.pageIdx++

		resources := w.doc.resolveDict(p.resources)
		if resources == nil {
			continue
		}
		xobj := w.doc.resolveDict(resources["XObject"])
		if len(xobj) == 0 {
			continue
		}

		names := make([]string, 0, len(xobj))
		for name := range xobj {
			names = append(names, name)
		}
		sort.Strings(names)

		w.page = p.number
		w.xobj = xobj
		w.names = names
		return true
	}
	return false
}

// visit проверяет ресурс и описывает его, если это поток изображения
func (w *Walker) visit(name string) (entities.ImageStream, bool) {
	ref, ok := w.xobj[name].(types.IndirectRef)
	if !ok {
		// Прямой поток не имеет идентичности для подстановки
		return entities.ImageStream{}, false
	}
	id := entities.ObjectID{Number: int(ref.ObjectNumber), Generation: int(ref.GenerationNumber)}
	if w.seen[id] {
		return entities.ImageStream{}, false
	}

	entry, err := w.doc.entry(id)
	if err != nil {
		return entities.ImageStream{}, false
	}
	sd, ok := entry.Object.(types.StreamDict)
	if !ok {
		return entities.ImageStream{}, false
	}
	switch nameOf(sd.Dict, "Type") {
	case "", "XObject":
	default:
		return entities.ImageStream{}, false
	}
	if !isImageStream(sd) {
		return entities.ImageStream{}, false
	}

	w.seen[id] = true
	img := w.doc.describe(sd)
	img.ID = id
	img.Page = w.page
	img.ResourceName = name
	return img, true
}

// describe собирает описание изображения из словаря потока.
// Некорректные значения не являются ошибкой обхода: они приводят
// к пропуску изображения на этапе перекодирования.
func (d *Document) describe(sd types.StreamDict) entities.ImageStream {
	dict := sd.Dict
	img := entities.ImageStream{
		Width:            d.intEntry(dict, "Width"),
		Height:           d.intEntry(dict, "Height"),
		BitsPerComponent: d.intEntry(dict, "BitsPerComponent"),
		Data:             sd.Raw,
	}

	if b, ok := d.deref(dict["ImageMask"]).(types.Boolean); ok && bool(b) {
		img.ImageMask = true
		if img.BitsPerComponent == 0 {
			img.BitsPerComponent = 1
		}
	}
	_, img.HasSMask = dict["SMask"]

	img.ColorSpace, img.Palette = d.colorSpace(dict["ColorSpace"], 0)
	img.Decode = d.numbers(dict["Decode"])
	img.Filters = d.filters(dict)
	return img
}

func (d *Document) deref(o types.Object) types.Object {
	if o == nil {
		return nil
	}
	obj, err := d.ctx.Dereference(o)
	if err != nil {
		return nil
	}
	return obj
}

func (d *Document) intEntry(dict types.Dict, key string) int {
	switch v := d.deref(dict[key]).(type) {
	case types.Integer:
		return int(v)
	case types.Float:
		return int(v)
	}
	return 0
}

func (d *Document) numbers(o types.Object) []float64 {
	arr, ok := d.deref(o).(types.Array)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(arr))
	for _, v := range arr {
		switch n := d.deref(v).(type) {
		case types.Integer:
			out = append(out, float64(n))
		case types.Float:
			out = append(out, float64(n))
		default:
			return nil
		}
	}
	return out
}

// filters собирает конвейер фильтров с параметрами декодирования
func (d *Document) filters(dict types.Dict) []entities.StreamFilter {
	var names []string
	switch v := d.deref(dict["Filter"]).(type) {
	case types.Name:
		names = []string{string(v)}
	case types.Array:
		for _, o := range v {
			if n, ok := d.deref(o).(types.Name); ok {
				names = append(names, string(n))
			}
		}
	}
	if len(names) == 0 {
		return nil
	}

	var parms []types.Object
	switch v := d.deref(dict["DecodeParms"]).(type) {
	case types.Dict:
		parms = []types.Object{v}
	case types.Array:
		parms = v
	}

	out := make([]entities.StreamFilter, len(names))
	for i, name := range names {
		out[i] = entities.StreamFilter{Name: expandFilterName(name)}
		if i < len(parms) {
			out[i].Params = d.intParams(parms[i])
		}
	}
	return out
}

func (d *Document) intParams(o types.Object) map[string]int {
	dict, ok := d.deref(o).(types.Dict)
	if !ok || len(dict) == 0 {
		return nil
	}
	params := make(map[string]int, len(dict))
	for k, v := range dict {
		switch n := d.deref(v).(type) {
		case types.Integer:
			params[k] = int(n)
		case types.Boolean:
			if n {
				params[k] = 1
			} else {
				params[k] = 0
			}
		}
	}
	return params
}

// expandFilterName разворачивает сокращенные имена фильтров
func expandFilterName(name string) string {
	switch name {
	case "Fl":
		return "FlateDecode"
	case "LZW":
		return "LZWDecode"
	case "A85":
		return "ASCII85Decode"
	case "AHx":
		return "ASCIIHexDecode"
	case "RL":
		return "RunLengthDecode"
	case "DCT":
		return "DCTDecode"
	case "CCF":
		return "CCITTFaxDecode"
	}
	return name
}

// colorSpace приводит цветовое пространство к поддерживаемым семействам
func (d *Document) colorSpace(o types.Object, depth int) (entities.ColorSpace, *entities.Palette) {
	if depth > 4 {
		return entities.ColorSpaceUnknown, nil
	}
	switch v := d.deref(o).(type) {
	case types.Name:
		return deviceColorSpace(string(v)), nil
	case types.Array:
		if len(v) == 0 {
			return entities.ColorSpaceUnknown, nil
		}
		family, _ := d.deref(v[0]).(types.Name)
		switch family {
		case "ICCBased":
			if len(v) < 2 {
				return entities.ColorSpaceUnknown, nil
			}
			return d.iccColorSpace(v[1], depth), nil
		case "CalGray":
			return entities.ColorSpaceGray, nil
		case "CalRGB":
			return entities.ColorSpaceRGB, nil
		case "Indexed", "I":
			return d.indexedColorSpace(v, depth)
		default:
			return deviceColorSpace(string(family)), nil
		}
	}
	return entities.ColorSpaceUnknown, nil
}

func deviceColorSpace(name string) entities.ColorSpace {
	switch name {
	case "DeviceGray", "G", "CalGray":
		return entities.ColorSpaceGray
	case "DeviceRGB", "RGB", "CalRGB":
		return entities.ColorSpaceRGB
	case "DeviceCMYK", "CMYK":
		return entities.ColorSpaceCMYK
	}
	return entities.ColorSpaceUnknown
}

func (d *Document) iccColorSpace(o types.Object, depth int) entities.ColorSpace {
	sd, ok := d.deref(o).(types.StreamDict)
	if !ok {
		return entities.ColorSpaceUnknown
	}
	switch d.intEntry(sd.Dict, "N") {
	case 1:
		return entities.ColorSpaceGray
	case 3:
		return entities.ColorSpaceRGB
	case 4:
		return entities.ColorSpaceCMYK
	}
	if alt, ok := sd.Dict["Alternate"]; ok {
		cs, _ := d.colorSpace(alt, depth+1)
		return cs
	}
	return entities.ColorSpaceUnknown
}

func (d *Document) indexedColorSpace(arr types.Array, depth int) (entities.ColorSpace, *entities.Palette) {
	if len(arr) < 4 {
		return entities.ColorSpaceUnknown, nil
	}
	base, _ := d.colorSpace(arr[1], depth+1)
	if base == entities.ColorSpaceUnknown || base == entities.ColorSpaceIndexed {
		return entities.ColorSpaceUnknown, nil
	}
	hival, ok := d.deref(arr[2]).(types.Integer)
	if !ok || hival < 0 || hival > 255 {
		return entities.ColorSpaceUnknown, nil
	}
	lookup := d.lookupBytes(arr[3])
	if lookup == nil {
		return entities.ColorSpaceUnknown, nil
	}
	return entities.ColorSpaceIndexed, &entities.Palette{
		Base:   base,
		HiVal:  int(hival),
		Lookup: lookup,
	}
}

// lookupBytes читает таблицу палитры из строки или потока
func (d *Document) lookupBytes(o types.Object) []byte {
	switch v := d.deref(o).(type) {
	case types.StringLiteral:
		b, err := types.Unescape(string(v), false)
		if err != nil {
			return nil
		}
		return b
	case types.HexLiteral:
		s := strings.Join(strings.Fields(string(v)), "")
		if len(s)%2 == 1 {
			s += "0"
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil
		}
		return b
	case types.StreamDict:
		if err := v.Decode(); err != nil {
			return nil
		}
		return v.Content
	}
	return nil
}
