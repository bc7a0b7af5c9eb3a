// Package tui 交互控制模块
package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kevin-Rudy/pingdeck/pkg/registry"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// commandTimeout 单个用户命令等待引擎的最长时间
const commandTimeout = 2 * time.Second

// setupKeyBindings 设置键盘绑定
func (t *TUI) setupKeyBindings() {
	t.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			t.Stop()
			return nil
		}
		// 弹窗打开时按键交给弹窗处理
		if t.modalOpen {
			return event
		}

		switch event.Key() {
		case tcell.KeyUp:
			if t.navLimiter.Allow() {
				t.navigateUp()
			}
			return nil
		case tcell.KeyDown:
			if t.navLimiter.Allow() {
				t.navigateDown()
			}
			return nil
		case tcell.KeyEnter:
			t.toggleSelected()
			t.redraw()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				t.Stop()
			case ' ':
				t.toggleSelected()
				t.redraw()
			case 'f', 'F':
				t.toggleFavoriteSelected()
				t.redraw()
			case 's', 'S':
				t.stopAll()
				t.redraw()
			case 'a', 'A':
				t.showAddForm()
			case 'd', 'D':
				t.confirmRemoveSelected()
			default:
				return event
			}
			return nil
		}
		return event
	})
}

// navigateUp 向上导航
func (t *TUI) navigateUp() {
	t.statsMu.Lock()
	n := len(t.identifiers)
	if n == 0 {
		t.statsMu.Unlock()
		return
	}

	if t.selectedRow == -1 {
		// 从全选状态按上键，选择最后一个条目
		t.selectedRow = n - 1
	} else if t.selectedRow > 0 {
		t.selectedRow--
	} else {
		// 在第一个条目时按上键，返回全选状态
		t.selectedRow = -1
	}
	t.statsMu.Unlock()

	if !t.testMode {
		t.updateSelection()
		t.updateChart()
	}
}

// navigateDown 向下导航
func (t *TUI) navigateDown() {
	t.statsMu.Lock()
	n := len(t.identifiers)
	if n == 0 {
		t.statsMu.Unlock()
		return
	}

	if t.selectedRow == -1 {
		t.selectedRow = 0
	} else if t.selectedRow < n-1 {
		t.selectedRow++
	} else {
		// 在最后一个条目时按下键，返回全选状态
		t.selectedRow = -1
	}
	t.statsMu.Unlock()

	if !t.testMode {
		t.updateSelection()
		t.updateChart()
	}
}

// updateSelection 更新行选择状态
func (t *TUI) updateSelection() {
	t.statsMu.RLock()
	defer t.statsMu.RUnlock()
	t.updateSelectionLocked()
}

func (t *TUI) updateSelectionLocked() {
	if t.testMode || len(t.rowFlex) == 0 {
		return
	}

	for i, rowFlex := range t.rowFlex {
		bg := tcell.ColorDefault
		// 索引0是表头行
		if i > 0 && t.selectedRow == i-1 {
			bg = tcell.ColorDarkCyan
		}
		for j := 0; j < rowFlex.GetItemCount(); j++ {
			if textView, ok := rowFlex.GetItem(j).(*tview.TextView); ok {
				textView.SetBackgroundColor(bg)
			}
		}
	}
}

// toggleSelected 启动或停止当前选中目标的测量
func (t *TUI) toggleSelected() {
	id := t.selectedID()
	if id == "" {
		t.setMessage("[yellow]请先用↑/↓选择一个目标[white]")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	wasRunning := false
	if st, ok := t.statusFor(id); ok {
		wasRunning = st.Session.Running
	}

	ok, err := t.ctrl.Toggle(ctx, id)
	switch {
	case err != nil:
		t.setMessage(fmt.Sprintf("[red]操作失败: %v[white]", err))
	case wasRunning:
		t.setMessage(fmt.Sprintf("[yellow]正在停止 %s[white]", id))
	case ok:
		t.setMessage(fmt.Sprintf("[green]开始测量 %s[white]", id))
	default:
		t.setMessage(fmt.Sprintf("[yellow]%s 未能启动[white]", id))
	}
	t.refreshStatuses()
}

// toggleFavoriteSelected 切换当前选中目标的收藏状态
func (t *TUI) toggleFavoriteSelected() {
	id := t.selectedID()
	if id == "" {
		return
	}
	fav, err := t.ctrl.ToggleFavorite(id)
	if err != nil {
		t.setMessage(fmt.Sprintf("[red]操作失败: %v[white]", err))
		return
	}
	if fav {
		t.setMessage(fmt.Sprintf("[green]已收藏 %s[white]", id))
	} else {
		t.setMessage(fmt.Sprintf("已取消收藏 %s", id))
	}
	t.refreshStatuses()
	t.reselect(id)
}

// stopAll 请求停止所有运行中的测量
func (t *TUI) stopAll() {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := t.ctrl.StopAll(ctx); err != nil {
		t.setMessage(fmt.Sprintf("[red]停止失败: %v[white]", err))
		return
	}
	t.setMessage("[yellow]已请求停止所有测量[white]")
	t.refreshStatuses()
}

// removeSelected 删除当前选中的自定义目标
func (t *TUI) removeSelected() error {
	id := t.selectedID()
	if id == "" {
		return nil
	}
	if err := t.ctrl.Remove(id); err != nil {
		switch {
		case errors.Is(err, registry.ErrBuiltin):
			t.setMessage("[red]内置目标不可删除[white]")
		case errors.Is(err, registry.ErrRunning):
			t.setMessage("[red]请先停止测量再删除[white]")
		default:
			t.setMessage(fmt.Sprintf("[red]删除失败: %v[white]", err))
		}
		return err
	}
	t.setMessage(fmt.Sprintf("已删除 %s", id))
	t.refreshStatuses()
	return nil
}

// submitAdd 校验并添加自定义目标
func (t *TUI) submitAdd(name, address string) error {
	if err := registry.ValidateInput(name, address); err != nil {
		return err
	}
	e, err := t.ctrl.Add(name, address)
	if err != nil {
		return err
	}
	t.setMessage(fmt.Sprintf("[green]已添加 %s[white]", e.Name))
	t.refreshStatuses()
	t.reselect(e.ID)
	return nil
}

// reselect 在显示顺序变化后保持选中同一个目标
func (t *TUI) reselect(id string) {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	for i, identifier := range t.identifiers {
		if identifier == id {
			t.selectedRow = i
			return
		}
	}
}
