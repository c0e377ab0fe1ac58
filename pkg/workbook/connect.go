// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workbook

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ConnectOK is the result of a successful Connect.
const ConnectOK = "Excel文件验证成功"

// Connect checks that path is a readable Excel workbook.
func Connect(path string) string {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Sprintf("错误：文件 %s 不存在", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xls", ".xlsx":
	default:
		return "错误：仅支持Excel文件（.xls, .xlsx）"
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Sprintf("文件验证失败: %v", err)
	}
	defer f.Close()
	if len(f.GetSheetList()) == 0 {
		return "文件验证失败: workbook has no sheets"
	}
	return ConnectOK
}
