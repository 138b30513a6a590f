package roddom

// clickJS uses the element's own click so visually hidden radio inputs,
// which star widgets commonly use, still receive it.
const clickJS = `() => { this.click(); }`

// setValueJS goes through the prototype setter: front-end frameworks
// shadow the instance property and would not observe a plain assignment.
const setValueJS = `(text) => {
	let proto = HTMLInputElement.prototype;
	if (this instanceof HTMLTextAreaElement) proto = HTMLTextAreaElement.prototype;
	else if (this instanceof HTMLSelectElement) proto = HTMLSelectElement.prototype;
	const desc = Object.getOwnPropertyDescriptor(proto, 'value');
	if (desc && desc.set) desc.set.call(this, text); else this.value = text;
	const input = typeof InputEvent === 'function'
		? new InputEvent('input', { bubbles: true, inputType: 'insertText', data: text })
		: new Event('input', { bubbles: true });
	this.dispatchEvent(input);
	this.dispatchEvent(new Event('change', { bubbles: true }));
	this.dispatchEvent(new KeyboardEvent('keyup', { bubbles: true }));
}`

const setEditableJS = `(text) => {
	if (typeof this.focus === 'function') this.focus();
	this.textContent = text;
	this.dispatchEvent(new InputEvent('input', { bubbles: true, inputType: 'insertText', data: text }));
	this.dispatchEvent(new Event('change', { bubbles: true }));
	this.dispatchEvent(new KeyboardEvent('keyup', { bubbles: true }));
}`
