package model

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
)

// SaveModel はモデルをgob形式でファイルに保存する
//
// 保存先のディレクトリが存在しない場合は作成する。一時ファイルに書き出してから
// renameするため、読み手が書きかけのファイルを見ることはなく、失敗しても既存の
// ファイルは残る。
//
// 使用例:
//
//	clf := lightgbm.NewLGBMClassifier()
//	// ... モデルの学習 ...
//	err := model.SaveModel(clf, "artifacts/models/lgbm_model.gob")
func SaveModel(model interface{}, filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return perrors.NewModelError("SaveModel", "failed to create directory", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(filename)+".*.part")
	if err != nil {
		return perrors.NewModelError("SaveModel", "failed to create file", err)
	}

	err = SaveModelToWriter(model, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = perrors.NewModelError("SaveModel", "failed to close file", cerr)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		_ = os.Remove(tmp.Name())
		return perrors.NewModelError("SaveModel", "failed to replace file", err)
	}
	return nil
}

// LoadModel はファイルからモデルを読み込む
//
// 使用例:
//
//	var clf lightgbm.LGBMClassifier
//	err := model.LoadModel(&clf, "artifacts/models/lgbm_model.gob")
func LoadModel(model interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return perrors.NewModelError("LoadModel", "failed to open file", err)
	}
	defer file.Close()

	return LoadModelFromReader(model, file)
}

// SaveModelToWriter はモデルをio.Writerに保存する
func SaveModelToWriter(model interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(model); err != nil {
		return perrors.NewModelError("SaveModel", "failed to encode model", err)
	}
	return nil
}

// LoadModelFromReader はio.Readerからモデルを読み込む
func LoadModelFromReader(model interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(model); err != nil {
		return perrors.NewModelError("LoadModel", "failed to decode model", err)
	}
	return nil
}
