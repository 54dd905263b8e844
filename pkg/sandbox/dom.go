package sandbox

import (
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/dop251/goja"
	"github.com/wehubfusion/Daedalus/pkg/document"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// dom exposes the parsed document to scripts. Each *html.Node maps to exactly one script
// object, so identity comparisons in bundle code hold.
type dom struct {
	s       *Sandbox
	doc     *document.Document
	objects map[*html.Node]*goja.Object
	nodes   map[*goja.Object]*html.Node
}

func newDOM(s *Sandbox, doc *document.Document) *dom {
	return &dom{
		s:       s,
		doc:     doc,
		objects: make(map[*html.Node]*goja.Object),
		nodes:   make(map[*goja.Object]*html.Node),
	}
}

func (d *dom) wrap(n *html.Node) goja.Value {
	if n == nil {
		return goja.Null()
	}
	if obj, ok := d.objects[n]; ok {
		return obj
	}
	obj := d.s.vm.NewDynamicObject(&nodeObject{dom: d, n: n, props: make(map[string]goja.Value)})
	d.objects[n] = obj
	d.nodes[obj] = n
	return obj
}

// unwrap returns the node behind a script value, throwing a TypeError for anything else
func (d *dom) unwrap(v goja.Value) *html.Node {
	if obj, ok := v.(*goja.Object); ok {
		if n, ok := d.nodes[obj]; ok {
			return n
		}
	}
	panic(d.s.vm.NewTypeError("parameter is not of type 'Node'"))
}

func (d *dom) wrapAll(nodes []*html.Node) *goja.Object {
	items := make([]interface{}, len(nodes))
	for i, n := range nodes {
		items[i] = d.wrap(n)
	}
	return d.s.vm.NewArray(items...)
}

func (d *dom) isFragment(n *html.Node) bool {
	return n.Type == html.DocumentNode && n != d.doc.Root
}

func (d *dom) compile(selector string) cascadia.SelectorGroup {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		panic(d.s.vm.NewTypeError("'" + selector + "' is not a valid selector"))
	}
	return sel
}

func (d *dom) createElement(tag string) *html.Node {
	tag = strings.ToLower(tag)
	return &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
}

// insert places child under parent before ref, detaching it first. Fragments move their
// children instead of themselves.
func (d *dom) insert(parent, child, ref *html.Node) {
	if ref != nil && ref.Parent != parent {
		panic(d.s.vm.NewTypeError("the node before which the new node is to be inserted is not a child of this node"))
	}
	for p := parent; p != nil; p = p.Parent {
		if p == child {
			panic(d.s.vm.NewTypeError("the new child element contains the parent"))
		}
	}
	if d.isFragment(child) {
		for c := child.FirstChild; c != nil; {
			next := c.NextSibling
			child.RemoveChild(c)
			parent.InsertBefore(c, ref)
			c = next
		}
		return
	}
	if child == ref {
		return
	}
	if child.Parent != nil {
		child.Parent.RemoveChild(child)
	}
	parent.InsertBefore(child, ref)
}

func (d *dom) setInnerHTML(n *html.Node, markup string) {
	nodes, err := document.ParseFragment(markup, n)
	if err != nil {
		panic(d.s.vm.NewGoError(err))
	}
	document.RemoveChildren(n)
	for _, c := range nodes {
		n.AppendChild(c)
	}
}

// nodeObject is the script view of a single node
type nodeObject struct {
	dom   *dom
	n     *html.Node
	props map[string]goja.Value
	fns   map[string]goja.Value
}

func (o *nodeObject) vm() *goja.Runtime { return o.dom.s.vm }

func (o *nodeObject) method(name string, fn func(goja.FunctionCall) goja.Value) goja.Value {
	if o.fns == nil {
		o.fns = make(map[string]goja.Value)
	}
	if v, ok := o.fns[name]; ok {
		return v
	}
	v := o.vm().ToValue(fn)
	o.fns[name] = v
	return v
}

func (o *nodeObject) Get(key string) goja.Value {
	if v, ok := o.props[key]; ok {
		return v
	}
	if o.n == o.dom.doc.Root {
		if v := o.documentProperty(key); v != nil {
			return v
		}
	}
	if v := o.nodeProperty(key); v != nil {
		return v
	}
	if o.n.Type == html.ElementNode {
		return o.elementProperty(key)
	}
	return nil
}

func (o *nodeObject) nodeProperty(key string) goja.Value {
	vm, d, n := o.vm(), o.dom, o.n
	switch key {
	case "nodeType":
		return vm.ToValue(nodeType(d, n))
	case "nodeName":
		return vm.ToValue(nodeName(d, n))
	case "parentNode":
		return d.wrap(n.Parent)
	case "parentElement":
		if n.Parent != nil && n.Parent.Type == html.ElementNode {
			return d.wrap(n.Parent)
		}
		return goja.Null()
	case "firstChild":
		return d.wrap(n.FirstChild)
	case "lastChild":
		return d.wrap(n.LastChild)
	case "nextSibling":
		return d.wrap(n.NextSibling)
	case "previousSibling":
		return d.wrap(n.PrevSibling)
	case "childNodes":
		return d.wrapAll(children(n, false))
	case "children":
		return d.wrapAll(children(n, true))
	case "firstElementChild":
		if c := children(n, true); len(c) > 0 {
			return d.wrap(c[0])
		}
		return goja.Null()
	case "ownerDocument":
		if n == d.doc.Root {
			return goja.Null()
		}
		return d.wrap(d.doc.Root)
	case "isConnected":
		for p := n; p != nil; p = p.Parent {
			if p == d.doc.Root {
				return vm.ToValue(true)
			}
		}
		return vm.ToValue(false)
	case "textContent":
		if n.Type == html.DocumentNode && !d.isFragment(n) {
			return goja.Null()
		}
		return vm.ToValue(document.TextContent(n))
	case "nodeValue", "data":
		if n.Type == html.TextNode || n.Type == html.CommentNode {
			return vm.ToValue(n.Data)
		}
		if key == "nodeValue" {
			return goja.Null()
		}
		return nil
	case "appendChild":
		return o.method(key, func(call goja.FunctionCall) goja.Value {
			d.insert(n, d.unwrap(call.Argument(0)), nil)
			return call.Argument(0)
		})
	case "insertBefore":
		return o.method(key, func(call goja.FunctionCall) goja.Value {
			var ref *html.Node
			if r := call.Argument(1); present(r) {
				ref = d.unwrap(r)
			}
			d.insert(n, d.unwrap(call.Argument(0)), ref)
			return call.Argument(0)
		})
	case "removeChild":
		return o.method(key, func(call goja.FunctionCall) goja.Value {
			child := d.unwrap(call.Argument(0))
			if child.Parent != n {
				panic(vm.NewTypeError("the node to be removed is not a child of this node"))
			}
			n.RemoveChild(child)
			return call.Argument(0)
		})
	case "replaceChild":
		return o.method(key, func(call goja.FunctionCall) goja.Value {
			replacement, old := d.unwrap(call.Argument(0)), d.unwrap(call.Argument(1))
			if old.Parent != n {
				panic(vm.NewTypeError("the node to be replaced is not a child of this node"))
			}
			next := old.NextSibling
			n.RemoveChild(old)
			if next == replacement {
				next = replacement.NextSibling
			}
			d.insert(n, replacement, next)
			return call.Argument(1)
		})
	case "remove":
		return o.method(key, func(goja.FunctionCall) goja.Value {
			if n.Parent != nil {
				n.Parent.RemoveChild(n)
			}
			return goja.Undefined()
		})
	case "hasChildNodes":
		return o.method(key, func(goja.FunctionCall) goja.Value {
			return vm.ToValue(n.FirstChild != nil)
		})
	case "contains":
		return o.method(key, func(call goja.FunctionCall) goja.Value {
			if !present(call.Argument(0)) {
				return vm.ToValue(false)
			}
			for p := d.unwrap(call.Argument(0)); p != nil; p = p.Parent {
				if p == n {
					return vm.ToValue(true)
				}
			}
			return vm.ToValue(false)
		})
	case "cloneNode":
		return o.method(key, func(call goja.FunctionCall) goja.Value {
			return d.wrap(cloneNode(n, call.Argument(0).ToBoolean()))
		})
	case "querySelector":
		return o.method(key, func(call goja.FunctionCall) goja.Value {
			return d.wrap(cascadia.Query(n, d.compile(call.Argument(0).String())))
		})
	case "querySelectorAll":
		return o.method(key, func(call goja.FunctionCall) goja.Value {
			return d.wrapAll(cascadia.QueryAll(n, d.compile(call.Argument(0).String())))
		})
	case "getElementsByTagName":
		return o.method(key, func(call goja.FunctionCall) goja.Value {
			tag := strings.ToLower(call.Argument(0).String())
			return d.wrapAll(descendants(n, func(c *html.Node) bool {
				return c.Type == html.ElementNode && (tag == "*" || c.Data == tag)
			}))
		})
	case "getElementsByClassName":
		return o.method(key, func(call goja.FunctionCall) goja.Value {
			want := strings.Fields(call.Argument(0).String())
			return d.wrapAll(descendants(n, func(c *html.Node) bool {
				return c.Type == html.ElementNode && hasClasses(c, want)
			}))
		})
	case "addEventListener", "removeEventListener":
		return o.method(key, func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	case "dispatchEvent":
		return o.method(key, func(goja.FunctionCall) goja.Value { return vm.ToValue(true) })
	}
	return nil
}

func (o *nodeObject) elementProperty(key string) goja.Value {
	vm, d, n := o.vm(), o.dom, o.n
	switch key {
	case "tagName":
		return vm.ToValue(strings.ToUpper(n.Data))
	case "localName":
		return vm.ToValue(n.Data)
	case "id":
		return vm.ToValue(attr(n, "id"))
	case "className":
		return vm.ToValue(attr(n, "class"))
	case "innerHTML":
		return vm.ToValue(document.InnerHTML(n))
	case "outerHTML":
		return vm.ToValue(document.Render(n))
	case "attributes":
		items := make([]interface{}, 0, len(n.Attr))
		for _, a := range n.Attr {
			items = append(items, map[string]interface{}{"name": a.Key, "value": a.Val})
		}
		return vm.NewArray(items...)
	case "style", "dataset", "classList":
		v := o.inertBag(key)
		o.props[key] = v
		return v
	case "getAttribute":
		return o.method(key, func(call goja.FunctionCall) goja.Value {
			if v, ok := lookupAttr(n, call.Argument(0).String()); ok {
				return vm.ToValue(v)
			}
			return goja.Null()
		})
	case "hasAttribute":
		return o.method(key, func(call goja.FunctionCall) goja.Value {
			_, ok := lookupAttr(n, call.Argument(0).String())
			return vm.ToValue(ok)
		})
	case "setAttribute":
		return o.method(key, func(call goja.FunctionCall) goja.Value {
			setAttr(n, call.Argument(0).String(), call.Argument(1).String())
			return goja.Undefined()
		})
	case "removeAttribute":
		return o.method(key, func(call goja.FunctionCall) goja.Value {
			removeAttr(n, call.Argument(0).String())
			return goja.Undefined()
		})
	case "matches":
		return o.method(key, func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(d.compile(call.Argument(0).String()).Match(n))
		})
	case "closest":
		return o.method(key, func(call goja.FunctionCall) goja.Value {
			sel := d.compile(call.Argument(0).String())
			for p := n; p != nil && p.Type == html.ElementNode; p = p.Parent {
				if sel.Match(p) {
					return d.wrap(p)
				}
			}
			return goja.Null()
		})
	case "focus", "blur", "click", "scrollIntoView":
		return o.method(key, func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	case "getBoundingClientRect":
		return o.method(key, func(goja.FunctionCall) goja.Value {
			return vm.ToValue(map[string]interface{}{
				"x": 0, "y": 0, "top": 0, "left": 0, "right": 0, "bottom": 0, "width": 0, "height": 0,
			})
		})
	}
	return nil
}

func (o *nodeObject) documentProperty(key string) goja.Value {
	vm, d, doc := o.vm(), o.dom, o.dom.doc
	switch key {
	case "documentElement":
		return d.wrap(doc.DocumentElement())
	case "head":
		return d.wrap(doc.Head())
	case "body":
		return d.wrap(doc.Body())
	case "title":
		return vm.ToValue(doc.Title())
	case "URL", "documentURI":
		return vm.ToValue(d.s.config.DocumentURL)
	case "location":
		return d.s.location
	case "defaultView":
		return vm.GlobalObject()
	case "readyState":
		return vm.ToValue("complete")
	case "characterSet":
		return vm.ToValue("UTF-8")
	case "cookie":
		return vm.ToValue("")
	case "createElement", "createElementNS":
		return o.method(key, func(call goja.FunctionCall) goja.Value {
			tag := call.Argument(0).String()
			if key == "createElementNS" {
				tag = call.Argument(1).String()
			}
			return d.wrap(d.createElement(tag))
		})
	case "createTextNode":
		return o.method(key, func(call goja.FunctionCall) goja.Value {
			return d.wrap(&html.Node{Type: html.TextNode, Data: call.Argument(0).String()})
		})
	case "createComment":
		return o.method(key, func(call goja.FunctionCall) goja.Value {
			return d.wrap(&html.Node{Type: html.CommentNode, Data: call.Argument(0).String()})
		})
	case "createDocumentFragment":
		return o.method(key, func(goja.FunctionCall) goja.Value {
			return d.wrap(&html.Node{Type: html.DocumentNode})
		})
	case "getElementById":
		return o.method(key, func(call goja.FunctionCall) goja.Value {
			id := call.Argument(0).String()
			found := descendants(doc.Root, func(c *html.Node) bool {
				return c.Type == html.ElementNode && attr(c, "id") == id
			})
			if len(found) == 0 {
				return goja.Null()
			}
			return d.wrap(found[0])
		})
	}
	return nil
}

// inertBag is a plain object accepting any assignment
func (o *nodeObject) inertBag(key string) goja.Value {
	bag := o.vm().NewObject()
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	switch key {
	case "style":
		_ = bag.Set("setProperty", noop)
		_ = bag.Set("removeProperty", noop)
	case "classList":
		_ = bag.Set("add", noop)
		_ = bag.Set("remove", noop)
		_ = bag.Set("toggle", noop)
		_ = bag.Set("contains", func(call goja.FunctionCall) goja.Value {
			return o.vm().ToValue(hasClasses(o.n, []string{call.Argument(0).String()}))
		})
	}
	return bag
}

func (o *nodeObject) Set(key string, val goja.Value) bool {
	n := o.n
	if n == o.dom.doc.Root {
		switch key {
		case "title":
			o.dom.doc.SetTitle(val.String())
			return true
		case "cookie":
			return true
		}
	}
	switch key {
	case "textContent":
		if n.Type != html.DocumentNode || o.dom.isFragment(n) {
			document.SetTextContent(n, val.String())
		}
		return true
	case "nodeValue", "data":
		if n.Type == html.TextNode || n.Type == html.CommentNode {
			n.Data = val.String()
			return true
		}
	}
	if n.Type == html.ElementNode {
		switch key {
		case "innerHTML":
			o.dom.setInnerHTML(n, val.String())
			return true
		case "id":
			setAttr(n, "id", val.String())
			return true
		case "className":
			setAttr(n, "class", val.String())
			return true
		}
	}
	o.props[key] = val
	return true
}

func (o *nodeObject) Has(key string) bool {
	if _, ok := o.props[key]; ok {
		return true
	}
	return o.Get(key) != nil
}

func (o *nodeObject) Delete(key string) bool {
	delete(o.props, key)
	return true
}

func (o *nodeObject) Keys() []string {
	keys := make([]string, 0, len(o.props))
	for k := range o.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nodeType(d *dom, n *html.Node) int {
	switch n.Type {
	case html.ElementNode:
		return 1
	case html.TextNode:
		return 3
	case html.CommentNode:
		return 8
	case html.DoctypeNode:
		return 10
	case html.DocumentNode:
		if d.isFragment(n) {
			return 11
		}
		return 9
	}
	return 0
}

func nodeName(d *dom, n *html.Node) string {
	switch n.Type {
	case html.ElementNode:
		return strings.ToUpper(n.Data)
	case html.TextNode:
		return "#text"
	case html.CommentNode:
		return "#comment"
	case html.DoctypeNode:
		return n.Data
	case html.DocumentNode:
		if d.isFragment(n) {
			return "#document-fragment"
		}
		return "#document"
	}
	return ""
}

func children(n *html.Node, elementsOnly bool) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !elementsOnly || c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func descendants(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(p *html.Node) {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if match(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

func cloneNode(n *html.Node, deep bool) *html.Node {
	clone := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	if deep {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			clone.AppendChild(cloneNode(c, true))
		}
	}
	return clone
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	key = strings.ToLower(key)
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	key = strings.ToLower(key)
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	key = strings.ToLower(key)
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func hasClasses(n *html.Node, want []string) bool {
	if len(want) == 0 {
		return false
	}
	have := strings.Fields(attr(n, "class"))
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
