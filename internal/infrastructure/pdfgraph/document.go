package pdfgraph

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"pdfshrink/internal/domain/entities"
)

// Предел вложенности дерева страниц
const maxPageTreeDepth = 64

var configOnce sync.Once

// newConfiguration возвращает конфигурацию pdfcpu без обращения к каталогу настроек пользователя
func newConfiguration() *model.Configuration {
	configOnce.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// page лист дерева страниц с унаследованными ресурсами
type page struct {
	number    int
	dict      types.Dict
	resources types.Object
}

// Document граф объектов одного PDF. Таблица xref pdfcpu служит ареной:
// слот индексируется номером объекта, поколение хранится в слоте.
// Документ принадлежит одной горутине-владельцу, мьютекс защищает
// подстановку и сериализацию от чередования.
type Document struct {
	mu         sync.Mutex
	ctx        *model.Context
	pages      []page
	serialized bool
}

// Open разбирает PDF из памяти
func Open(data []byte) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("%w: сбой разбора: %v", entities.ErrUnparsableDocument, r)
		}
	}()

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: пустой файл", entities.ErrUnparsableDocument)
	}

	ctx, err := api.ReadContext(bytes.NewReader(data), newConfiguration())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrUnparsableDocument, err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrUnparsableDocument, err)
	}

	doc = &Document{ctx: ctx}
	if err := doc.collectPages(); err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrUnparsableDocument, err)
	}
	if len(doc.pages) == 0 {
		return nil, fmt.Errorf("%w: документ не содержит страниц", entities.ErrUnparsableDocument)
	}

	return doc, nil
}

// PageCount возвращает количество страниц
func (d *Document) PageCount() int {
	return len(d.pages)
}

// Identities возвращает идентичности всех используемых слотов в порядке номеров
func (d *Document) Identities() []entities.ObjectID {
	ids := make([]entities.ObjectID, 0, len(d.ctx.Table))
	for nr, entry := range d.ctx.Table {
		if nr == 0 || entry == nil || entry.Free || entry.Generation == nil {
			continue
		}
		ids = append(ids, entities.ObjectID{Number: nr, Generation: *entry.Generation})
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Number < ids[j].Number })
	return ids
}

// Resolve возвращает объект слота с проверкой поколения
func (d *Document) Resolve(id entities.ObjectID) (types.Object, error) {
	entry, err := d.entry(id)
	if err != nil {
		return nil, err
	}
	return entry.Object, nil
}

func (d *Document) entry(id entities.ObjectID) (*model.XRefTableEntry, error) {
	entry, ok := d.ctx.Table[id.Number]
	if !ok || entry == nil || entry.Free {
		return nil, fmt.Errorf("%w: %s", entities.ErrObjectNotFound, id)
	}
	if entry.Generation == nil || *entry.Generation != id.Generation {
		return nil, fmt.Errorf("%w: %s (другое поколение)", entities.ErrObjectNotFound, id)
	}
	return entry, nil
}

// collectPages обходит дерево страниц от каталога в глубину
func (d *Document) collectPages() error {
	if d.ctx.Root == nil {
		return fmt.Errorf("отсутствует каталог документа")
	}
	catalog, err := d.ctx.DereferenceDict(*d.ctx.Root)
	if err != nil || catalog == nil {
		return fmt.Errorf("не удалось прочитать каталог: %v", err)
	}
	root, found := catalog.Find("Pages")
	if !found {
		return fmt.Errorf("в каталоге нет дерева страниц")
	}

	visited := make(map[int]bool)
	return d.walkPageTree(root, nil, visited, 0)
}

func (d *Document) walkPageTree(node types.Object, inherited types.Object, visited map[int]bool, depth int) error {
	if depth > maxPageTreeDepth {
		return fmt.Errorf("слишком глубокое дерево страниц")
	}
	if ref, ok := node.(types.IndirectRef); ok {
		nr := int(ref.ObjectNumber)
		if visited[nr] {
			return fmt.Errorf("цикл в дереве страниц на объекте %d", nr)
		}
		visited[nr] = true
	}

	dict, err := d.ctx.DereferenceDict(node)
	if err != nil {
		return err
	}
	if dict == nil {
		return nil
	}

	resources := inherited
	if res, found := dict.Find("Resources"); found && res != nil {
		resources = res
	}

	kids, hasKids := dict.Find("Kids")
	nodeType := nameOf(dict, "Type")
	if nodeType == "Page" || (nodeType == "" && !hasKids) {
		d.pages = append(d.pages, page{
			number:    len(d.pages) + 1,
			dict:      dict,
			resources: resources,
		})
		return nil
	}

	kidsObj, err := d.ctx.Dereference(kids)
	if err != nil {
		return err
	}
	arr, ok := kidsObj.(types.Array)
	if !ok {
		return nil
	}
	for _, kid := range arr {
		if err := d.walkPageTree(kid, resources, visited, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// resolveDict разыменовывает объект и возвращает словарь, если это словарь
func (d *Document) resolveDict(o types.Object) types.Dict {
	if o == nil {
		return nil
	}
	obj, err := d.ctx.Dereference(o)
	if err != nil || obj == nil {
		return nil
	}
	switch v := obj.(type) {
	case types.Dict:
		return v
	case types.StreamDict:
		return v.Dict
	}
	return nil
}

func nameOf(dict types.Dict, key string) string {
	if dict == nil {
		return ""
	}
	if n, ok := dict[key].(types.Name); ok {
		return string(n)
	}
	return ""
}

// isImageStream проверяет подтип потока
func isImageStream(sd types.StreamDict) bool {
	return nameOf(sd.Dict, "Subtype") == "Image"
}
