package archive

import (
	"archive/tar"
	"io"

	"github.com/FocuswithJustin/teijson/core/corpus"
	"github.com/FocuswithJustin/teijson/core/errors"
	"github.com/FocuswithJustin/teijson/core/tei"
	"github.com/FocuswithJustin/teijson/internal/logging"
)

// Convert converts every TEI member of the archive at path and gathers the
// documents into one corpus, in archive order. The corpus title and
// contributors come from the first member that declares them.
//
// A member that fails to convert aborts the whole conversion; the error
// names the member as "archive:member".
func Convert(path string, opts ...tei.Option) (*corpus.Corpus, error) {
	out := &corpus.Corpus{Documents: []*corpus.Document{}}
	members := 0

	err := Walk(path, func(header *tar.Header, content io.Reader) (bool, error) {
		if !IsTEIMember(header.Name) {
			return false, nil
		}
		members++

		where := path + ":" + header.Name
		memberOpts := append([]tei.Option{
			tei.WithLogger(logging.GetLogger().With("input", where)),
		}, opts...)

		c, err := tei.Convert(content, memberOpts...)
		if err != nil {
			var pe *errors.ParseError
			if errors.As(err, &pe) {
				return true, errors.WithPath(err, where)
			}
			return true, errors.Wrap(err, where)
		}
		merge(out, c)
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if members == 0 {
		return nil, errors.NewNotFound("TEI member", path)
	}
	return out, nil
}

func merge(dst, src *corpus.Corpus) {
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if len(dst.Contributors) == 0 {
		dst.Contributors = src.Contributors
	}
	dst.Documents = append(dst.Documents, src.Documents...)
}
