// Package tui 弹窗表单
package tui

import (
	"fmt"

	"github.com/rivo/tview"
)

const (
	pageMain    = "main"
	pageAdd     = "add"
	pageConfirm = "confirm"
)

// centered 把组件放在屏幕中央
func centered(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 1, true).
			AddItem(nil, 0, 1, false), width, 1, true).
		AddItem(nil, 0, 1, false)
}

// closeModal 关闭弹窗并回到主界面
func (t *TUI) closeModal(page string) {
	t.pages.RemovePage(page)
	t.modalOpen = false
	t.app.SetFocus(t.flex)
	t.redraw()
}

// showAddForm 显示添加自定义目标的表单
func (t *TUI) showAddForm() {
	form := tview.NewForm()
	form.AddInputField("名称", "", 30, nil, nil)
	form.AddInputField("地址", "", 30, nil, nil)

	errText := tview.NewTextView().SetDynamicColors(true)

	form.AddButton("添加", func() {
		name := form.GetFormItemByLabel("名称").(*tview.InputField).GetText()
		address := form.GetFormItemByLabel("地址").(*tview.InputField).GetText()
		if err := t.submitAdd(name, address); err != nil {
			errText.SetText(fmt.Sprintf("[red]%s[white]", tview.Escape(err.Error())))
			return
		}
		t.closeModal(pageAdd)
	})
	form.AddButton("取消", func() {
		t.closeModal(pageAdd)
	})
	form.SetCancelFunc(func() {
		t.closeModal(pageAdd)
	})

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(form, 0, 1, true).
		AddItem(errText, 1, 0, false)
	layout.SetBorder(true).SetTitle(" 添加目标 ")

	t.modalOpen = true
	t.pages.AddPage(pageAdd, centered(layout, 50, 11), true, true)
	t.app.SetFocus(form)
}

// confirmRemoveSelected 确认后删除选中的目标
func (t *TUI) confirmRemoveSelected() {
	id := t.selectedID()
	if id == "" {
		return
	}
	name := id
	if st, ok := t.statusFor(id); ok {
		name = st.Endpoint.Name
	}

	modal := tview.NewModal().
		SetText(fmt.Sprintf("删除目标 %s ?", name)).
		AddButtons([]string{"删除", "取消"}).
		SetDoneFunc(func(buttonIndex int, _ string) {
			if buttonIndex == 0 {
				_ = t.removeSelected()
			}
			t.closeModal(pageConfirm)
		})

	t.modalOpen = true
	t.pages.AddPage(pageConfirm, modal, true, true)
	t.app.SetFocus(modal)
}
