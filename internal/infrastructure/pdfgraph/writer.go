package pdfgraph

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"pdfshrink/internal/domain/entities"
)

// Ключи кодирования, которые теряют смысл после перекодирования
var staleEncodingKeys = []string{"DecodeParms", "Decode", "DL", "FFilter", "FDecodeParms", "F"}

// Substitute заменяет содержимое и ключи кодирования потока изображения
// в том же слоте арены. Номер объекта, поколение и остальные ключи
// словаря (SMask, Intent, Metadata, OC и т.д.) не меняются.
func (d *Document) Substitute(id entities.ObjectID, img *entities.TranscodedImage) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.serialized {
		return fmt.Errorf("%w: документ уже записан", entities.ErrSerializationFailure)
	}
	if img == nil || len(img.Data) == 0 {
		return fmt.Errorf("%w: пустые данные для %s", entities.ErrTranscodeFailure, id)
	}

	entry, err := d.entry(id)
	if err != nil {
		return err
	}
	sd, ok := entry.Object.(types.StreamDict)
	if !ok || !isImageStream(sd) {
		return fmt.Errorf("%w: %s", entities.ErrNotImageStream, id)
	}

	data := make([]byte, len(img.Data))
	copy(data, img.Data)

	for _, key := range staleEncodingKeys {
		delete(sd.Dict, key)
	}
	// Маска цветового ключа задается в исходных значениях компонент
	if _, isArray := sd.Dict["Mask"].(types.Array); isArray {
		delete(sd.Dict, "Mask")
	}

	d.dropStaleMatte(sd.Dict["SMask"], img.ColorSpace.Channels())

	sd.Dict["Filter"] = types.Name(img.Filter)
	sd.Dict["Width"] = types.Integer(img.Width)
	sd.Dict["Height"] = types.Integer(img.Height)
	sd.Dict["ColorSpace"] = types.Name(img.ColorSpace.String())
	sd.Dict["BitsPerComponent"] = types.Integer(img.BitsPerComponent)
	sd.Dict["Length"] = types.Integer(len(data))

	length := int64(len(data))
	sd.StreamLength = &length
	sd.StreamLengthObjNr = nil
	sd.FilterPipeline = []types.PDFFilter{{Name: img.Filter}}
	sd.Raw = data
	sd.Content = nil

	entry.Object = sd
	return nil
}

// dropStaleMatte удаляет Matte мягкой маски, если число его компонент
// не совпадает с новым цветовым пространством родительского изображения
func (d *Document) dropStaleMatte(smask types.Object, channels int) {
	mask, ok := d.deref(smask).(types.StreamDict)
	if !ok {
		return
	}
	matte, ok := d.deref(mask.Dict["Matte"]).(types.Array)
	if !ok || len(matte) == channels {
		return
	}
	delete(mask.Dict, "Matte")
}

// Serialize записывает документ целиком в промежуточный буфер.
// При ошибке байты не возвращаются.
func (d *Document) Serialize() (out []byte, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.serialized {
		return nil, fmt.Errorf("%w: документ уже записан", entities.ErrSerializationFailure)
	}
	d.serialized = true

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: %v", entities.ErrSerializationFailure, r)
		}
	}()

	var buf bytes.Buffer
	if err := api.WriteContext(d.ctx, &buf); err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrSerializationFailure, err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: пустой результат", entities.ErrSerializationFailure)
	}
	return buf.Bytes(), nil
}
