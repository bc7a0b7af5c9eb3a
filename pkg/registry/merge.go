package registry

import (
	"sort"

	"github.com/Kevin-Rudy/pingdeck/pkg/core"
)

// Merge 合并内置目标、持久化的自定义目标和收藏标识符（纯函数）
// 第一阶段以内置目标为种子；第二阶段只叠加标记为custom且不与内置冲突的条目；
// 最后把收藏作为注解应用到结果上
func Merge(builtins, persisted []core.Endpoint, favoriteIDs []string) []core.Endpoint {
	byID := make(map[string]int, len(builtins)+len(persisted))
	out := make([]core.Endpoint, 0, len(builtins)+len(persisted))

	for _, b := range builtins {
		if _, dup := byID[b.ID]; dup || b.ID == "" {
			continue
		}
		b.Custom = false
		b.Favorite = false
		byID[b.ID] = len(out)
		out = append(out, b)
	}

	for _, p := range persisted {
		if !p.Custom || p.ID == "" {
			continue
		}
		if _, dup := byID[p.ID]; dup {
			continue
		}
		p.Favorite = false
		byID[p.ID] = len(out)
		out = append(out, p)
	}

	for _, id := range favoriteIDs {
		if i, ok := byID[id]; ok {
			out[i].Favorite = true
		}
	}

	return out
}

// SortForDisplay 按显示顺序排序：收藏优先，然后按名称，名称相同时按标识符
func SortForDisplay(endpoints []core.Endpoint) {
	sort.SliceStable(endpoints, func(i, j int) bool {
		a, b := endpoints[i], endpoints[j]
		if a.Favorite != b.Favorite {
			return a.Favorite
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

// Projection 是写入持久化存储的两个投影
type Projection struct {
	Customs   []core.Endpoint
	Favorites []string
}

// project 从当前目标集合计算持久化投影
func project(endpoints []core.Endpoint) Projection {
	p := Projection{
		Customs:   make([]core.Endpoint, 0),
		Favorites: make([]string, 0),
	}
	for _, e := range endpoints {
		if e.Custom {
			c := e
			c.Favorite = false
			p.Customs = append(p.Customs, c)
		}
		if e.Favorite {
			p.Favorites = append(p.Favorites, e.ID)
		}
	}
	sort.Slice(p.Customs, func(i, j int) bool { return p.Customs[i].ID < p.Customs[j].ID })
	sort.Strings(p.Favorites)
	return p
}
